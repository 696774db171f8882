package ingest

import (
	"context"
	"fmt"
	"os"
	"sync"

	"rocksniff/diag"

	"github.com/fsnotify/fsnotify"
)

// Watcher feeds content file changes under a directory tree to a Pipeline.
// fsnotify is not recursive, so every directory (symlinked ones included) is
// added on its own, and directories created later are added as they appear.
type Watcher struct {
	fs       *fsnotify.Watcher
	pipeline *Pipeline
	diag     *diag.Diagnostics
	log      diag.Logger

	done chan struct{}
	once sync.Once
}

func NewWatcher(root string, p *Pipeline, d *diag.Diagnostics) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		fs:       fw,
		pipeline: p,
		diag:     d,
		log:      d.Logger("watcher"),
		done:     make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	var addErr error
	err := walkDirs(root, func(dir string, _ []os.DirEntry) {
		if err := w.fs.Add(dir); err != nil && addErr == nil {
			addErr = fmt.Errorf("failed to watch %s: %w", dir, err)
			return
		}
		w.log.Infoln("Watching", dir)
	})
	if err != nil {
		return err
	}
	return addErr
}

// Run handles events until ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("Watcher error:", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	w.diag.Debug(diag.ProcessingQueue, "watcher", "Watcher:", ev.Op, ev.Name)

	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.log.Warn(err)
			}
			return
		}
	}

	if !isContentFile(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.pipeline.Post(ev.Name)
	case ev.Has(fsnotify.Rename):
		// The event names the old path; the new one arrives as a Create.
		if _, err := os.Stat(ev.Name); err == nil {
			w.pipeline.Post(ev.Name)
		}
	}
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	return err
}
