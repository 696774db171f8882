// Package sniffer runs the telemetry and state loops against a game process
// and keeps the song cache fed from its content directory.
package sniffer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"rocksniff/cache"
	"rocksniff/content"
	"rocksniff/diag"
	"rocksniff/ingest"
	"rocksniff/readout"
	"rocksniff/song"

	"github.com/google/uuid"
)

var ErrAlreadyStarted = errors.New("sniffer already started")

const DefaultInterval = 100 * time.Millisecond

// Telemetry is the memory side of the sniffer. *telemetry.Reader implements
// it.
type Telemetry interface {
	Tick(ctx context.Context) (*readout.Readout, error)
	TriggerEnumeration() error
}

// Handler receives sniffer events. Readouts and song changes arrive on the
// telemetry loop, state events on the state loop and installs on ingest
// workers, so implementations must be safe for concurrent use.
type Handler interface {
	OnMemoryReadout(r *readout.Readout)
	OnSongChanged(d *song.Details)
	OnStateChanged(from, to State)
	OnSongStarted(s Session)
	OnSongEnded(s Session)
	OnContentFileInstalled(path string, success bool)
}

// NopHandler ignores every event. Embed it to handle only some.
type NopHandler struct{}

func (NopHandler) OnMemoryReadout(*readout.Readout)    {}
func (NopHandler) OnSongChanged(*song.Details)         {}
func (NopHandler) OnStateChanged(State, State)         {}
func (NopHandler) OnSongStarted(Session)               {}
func (NopHandler) OnSongEnded(Session)                 {}
func (NopHandler) OnContentFileInstalled(string, bool) {}

// Session is one play of a song, from SongStarted to SongEnded.
type Session struct {
	ID        uuid.UUID     `json:"id"`
	SongID    string        `json:"song_id"`
	Song      *song.Details `json:"-"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`

	// Final is the last readout before the song ended.
	Final *readout.Readout `json:"final,omitempty"`
}

type Options struct {
	// ContentDir is the game directory holding songs.psarc and dlc/. Empty
	// disables ingestion.
	ContentDir            string
	EnableAutoEnumeration bool
	Parallelism           int
	Interval              time.Duration

	Parser content.Parser
	Hasher content.Hasher
}

func DefaultOptions() Options {
	return Options{EnableAutoEnumeration: true, Interval: DefaultInterval}
}

// Snapshot is a point in time view for consumers outside the event stream.
type Snapshot struct {
	State   State            `json:"state"`
	Readout *readout.Readout `json:"readout"`
	Song    *song.Details    `json:"song"`
	Session *Session         `json:"session,omitempty"`
}

type Sniffer struct {
	telemetry Telemetry
	cache     cache.Cache
	handler   Handler
	opts      Options
	diag      *diag.Diagnostics
	log       diag.Logger

	running atomic.Bool
	readout atomic.Pointer[readout.Readout]
	details atomic.Pointer[song.Details]
	state   atomic.Int32
	session atomic.Pointer[Session]

	// machine belongs to the state loop.
	machine *Machine

	pipeline *ingest.Pipeline
	watcher  *ingest.Watcher

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(t Telemetry, c cache.Cache, h Handler, opts Options, d *diag.Diagnostics) *Sniffer {
	if h == nil {
		h = NopHandler{}
	}
	if c == nil {
		c = cache.NullCache{}
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Parser == nil {
		opts.Parser = content.Manifest{}
	}
	if opts.Hasher == nil {
		opts.Hasher = content.NewMD5Hasher()
	}
	return &Sniffer{
		telemetry: t,
		cache:     c,
		handler:   h,
		opts:      opts,
		diag:      d,
		log:       d.Logger("sniffer"),
		machine:   NewMachine(),
	}
}

// Start launches the loops and, with a content directory, the watcher and
// the bulk load. A sniffer runs once; it cannot be restarted after Stop.
func (s *Sniffer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.running.Store(true)

	ctx, s.cancel = context.WithCancel(ctx)
	s.startIngest(ctx)

	s.wg.Add(2)
	go s.loop(ctx, "memory readout", s.readOnce)
	go s.loop(ctx, "state machine", s.updateState)
	return nil
}

func (s *Sniffer) startIngest(ctx context.Context) {
	dir := s.opts.ContentDir
	if dir == "" {
		return
	}

	s.pipeline = ingest.New(s.cache, s.opts.Parser, s.opts.Hasher, ingest.Options{
		Parallelism: s.opts.Parallelism,
		OnInstalled: s.installed,
	}, s.diag)
	s.pipeline.Start(ctx)

	dlc := filepath.Join(dir, "dlc")
	if w, err := ingest.NewWatcher(dlc, s.pipeline, s.diag); err != nil {
		s.log.Warn("Unable to watch", dlc, err)
	} else {
		s.watcher = w
		go w.Run(ctx)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		files, err := ingest.ContentFiles(dir)
		if err != nil {
			s.log.Warn("Unable to list content files:", err)
		}
		s.log.Infoln("Found", len(files), "psarc files")
		if err := s.pipeline.Load(ctx, files); err != nil && s.running.Load() {
			s.log.Warn("Bulk load interrupted:", err)
		}
	}()
}

// Stop clears the running flag, closes the watcher and waits for the loops
// and the ingest workers to finish.
func (s *Sniffer) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.running.Store(false)
	if s.watcher != nil {
		s.watcher.Close()
	}
	s.cancel()
	s.wg.Wait()
	if s.pipeline != nil {
		s.pipeline.Stop()
	}
	s.log.Infoln("Stopped")
}

func (s *Sniffer) Running() bool {
	return s.running.Load()
}

func (s *Sniffer) loop(ctx context.Context, name string, body func(ctx context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for s.running.Load() {
		s.safely(name, func() { body(ctx) })
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sniffer) safely(name string, f func()) {
	defer func() {
		if r := recover(); r != nil && s.running.Load() {
			s.log.Warn("Error while processing", name+":", r)
		}
	}()
	f()
}

// readOnce takes one readout and looks up the song when its key changed or
// the current details are unusable.
func (s *Sniffer) readOnce(ctx context.Context) {
	ro, err := s.telemetry.Tick(ctx)
	if err != nil {
		if s.running.Load() {
			s.diag.Debug(diag.MemoryReadout, "sniffer", "Error while reading memory:", err)
		}
		return
	}

	prev := s.readout.Load()
	if ro.SongID != "" && (prev == nil || prev.SongID != ro.SongID || !s.details.Load().IsValid()) {
		if d := s.cache.Get(ro.SongID); d.IsValid() {
			s.details.Store(d)
			s.diag.Debug(diag.SongDetails, "sniffer", d.String())
			s.handler.OnSongChanged(d)
		}
	}

	s.readout.Store(ro)
	s.handler.OnMemoryReadout(ro)
}

func (s *Sniffer) updateState(context.Context) {
	ro := s.readout.Load()
	var timer float32
	if ro != nil {
		timer = ro.SongTimer
	}
	details := s.details.Load()

	t, ok := s.machine.Evaluate(timer, details)
	if !ok {
		return
	}
	s.state.Store(int32(t.To))
	s.diag.Debug(diag.StateMachine, "sniffer", "State", t.From, "->", t.To)
	s.handler.OnStateChanged(t.From, t.To)

	now := time.Now()
	switch {
	case t.Started:
		sess := &Session{ID: uuid.New(), SongID: details.SongID, Song: details, StartedAt: now}
		s.session.Store(sess)
		s.log.Infoln("Song started:", details.SongID, sess.ID)
		s.handler.OnSongStarted(*sess)
	case t.Ended:
		// Backing out of song selection ends a session that never started.
		ended := Session{ID: uuid.New(), Song: details}
		if details != nil {
			ended.SongID = details.SongID
		}
		if sess := s.session.Swap(nil); sess != nil {
			ended = *sess
		}
		ended.EndedAt = now
		ended.Final = ro
		s.log.Infoln("Song ended:", ended.SongID, ended.ID)
		s.handler.OnSongEnded(ended)
	}
}

func (s *Sniffer) installed(path string, success bool) {
	if s.opts.EnableAutoEnumeration {
		s.log.Infoln("New PSARC file installed:", path)
		if err := s.TriggerEnumeration(); err != nil {
			s.log.Warn("Unable to trigger enumeration:", err)
		}
	}
	s.handler.OnContentFileInstalled(path, success)
}

// TriggerEnumeration asks the game to rescan its content directories.
func (s *Sniffer) TriggerEnumeration() error {
	return s.telemetry.TriggerEnumeration()
}

func (s *Sniffer) State() State {
	return State(s.state.Load())
}

// Readout returns the latest published readout, or nil before the first.
func (s *Sniffer) Readout() *readout.Readout {
	return s.readout.Load()
}

// Details returns the details of the current song, or nil.
func (s *Sniffer) Details() *song.Details {
	return s.details.Load()
}

func (s *Sniffer) Snapshot() Snapshot {
	return Snapshot{
		State:   s.State(),
		Readout: s.readout.Load(),
		Song:    s.details.Load(),
		Session: s.session.Load(),
	}
}
