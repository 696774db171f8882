// Package ingest keeps the song cache in step with the content files on
// disk.
package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"sync"

	"rocksniff/cache"
	"rocksniff/content"
	"rocksniff/diag"
)

var ErrStopped = errors.New("pipeline stopped")

const defaultQueueSize = 4096

type Options struct {
	// Parallelism is the worker count. Zero picks min(8, NumCPU).
	Parallelism int
	QueueSize   int

	// OnInstalled is called after a watched file finished processing.
	// success is true when new details were committed to the cache.
	OnInstalled func(path string, success bool)
}

// DefaultParallelism clamps to 8 workers; parsing is disk bound well before
// that.
func DefaultParallelism() int {
	return min(8, max(1, runtime.NumCPU()))
}

type job struct {
	path    string
	watched bool
}

// Pipeline hashes, parses and caches content files on a bounded worker pool.
// A path is in flight from the moment it is posted until its worker is done
// with it; posting it again in that window is a no-op.
type Pipeline struct {
	cache  cache.Cache
	parser content.Parser
	hasher content.Hasher
	diag   *diag.Diagnostics
	log    diag.Logger
	opts   Options

	queue    chan job
	stopping chan struct{}

	mu       sync.RWMutex
	closed   bool
	inflight map[string]bool

	commit *keyLocks

	wg      sync.WaitGroup
	started bool
}

func New(c cache.Cache, parser content.Parser, hasher content.Hasher, opts Options, d *diag.Diagnostics) *Pipeline {
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Pipeline{
		cache:    c,
		parser:   parser,
		hasher:   hasher,
		diag:     d,
		log:      d.Logger("ingest"),
		opts:     opts,
		queue:    make(chan job, opts.QueueSize),
		stopping: make(chan struct{}),
		inflight: make(map[string]bool),
		commit:   newKeyLocks(),
	}
}

func (p *Pipeline) Parallelism() int {
	return p.opts.Parallelism
}

// Start launches the workers. ctx bounds the file waits inside hashing.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	p.log.Infoln("Using parallelism of", p.opts.Parallelism)
	for i := 0; i < p.opts.Parallelism; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Post queues a path reported by a watcher. It never blocks; a full queue
// drops the path with a warning.
func (p *Pipeline) Post(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if p.inflight[path] {
		p.diag.Debug(diag.ProcessingQueue, "ingest", "Already queued", filepath.Base(path))
		return false
	}

	select {
	case p.queue <- job{path: path, watched: true}:
		p.inflight[path] = true
		p.diag.Debug(diag.ProcessingQueue, "ingest", "Queue:", len(p.inflight), "/ Block:", len(p.queue))
		return true
	default:
		p.log.Warn("Unable to post", path, "to the processing queue")
		return false
	}
}

// Load queues paths from a bulk scan, waiting for queue space.
func (p *Pipeline) Load(ctx context.Context, paths []string) error {
	for _, path := range paths {
		if err := p.enqueue(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) enqueue(ctx context.Context, path string) error {
	select {
	case <-p.stopping:
		return ErrStopped
	default:
	}
	select {
	case p.queue <- job{path: path}:
		return nil
	case <-p.stopping:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new work and waits for queued work to finish.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stopping)
	p.mu.Unlock()

	p.wg.Wait()
}

// InFlight returns the number of watched paths not yet finished.
func (p *Pipeline) InFlight() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.inflight)
}

// worker runs until Stop, then drains whatever is still queued.
func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.queue:
			p.handle(ctx, j)
		case <-p.stopping:
			for {
				select {
				case j := <-p.queue:
					p.handle(ctx, j)
				default:
					return
				}
			}
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, j job) {
	success := p.runJob(ctx, j.path)
	p.done(j, success)
}

// runJob recovers so one bad file cannot take down a worker.
func (p *Pipeline) runJob(ctx context.Context, path string) (success bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("Panic while processing", path, r)
			success = false
		}
	}()
	return p.process(ctx, path)
}

func (p *Pipeline) process(ctx context.Context, path string) bool {
	name := filepath.Base(path)

	hash, err := p.hasher.Hash(ctx, path)
	if err != nil {
		p.log.Warn("Unable to calculate hash for", path, err)
		return false
	}

	if p.cache.Contains(path, hash) {
		p.diag.Debug(diag.FileDetails, "ingest", "Cached", name)
		return false
	}

	details, err := p.parser.Parse(path, hash)
	if err != nil {
		p.log.Warn("Unable to read", path, err)
		return false
	}
	if details == nil {
		p.log.Warn("Unable to parse", name)
		return false
	}

	for _, d := range details {
		if d != nil {
			d.FileHash = hash
		}
	}

	unlock := p.commit.lock(path + "\x00" + hash)
	defer unlock()

	// Another worker may have committed this exact file while we parsed.
	if p.cache.Contains(path, hash) {
		return false
	}
	if err := p.cache.Replace(path, hash, details); err != nil {
		p.log.Warn("Failed to cache", name, err)
		return false
	}
	p.diag.Debug(diag.FileDetails, "ingest", "Parsed", name, "songs:", len(details))
	return true
}

func (p *Pipeline) done(j job, success bool) {
	if !j.watched {
		return
	}

	p.mu.Lock()
	delete(p.inflight, j.path)
	n := len(p.inflight)
	p.mu.Unlock()

	p.diag.Debug(diag.ProcessingQueue, "ingest", "Queue:", n, "/ Block:", len(p.queue))
	if p.opts.OnInstalled != nil {
		p.opts.OnInstalled(j.path, success)
	}
}

// keyLocks hands out one mutex per key and forgets it once unused.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
