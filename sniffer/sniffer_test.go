package sniffer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rocksniff/cache"
	"rocksniff/readout"
	"rocksniff/song"

	"github.com/google/go-cmp/cmp"
)

type scriptedTelemetry struct {
	mu           sync.Mutex
	next         *readout.Readout
	err          error
	enumerations atomic.Int32
}

func (s *scriptedTelemetry) set(id string, timer float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = &readout.Readout{SongID: id, SongTimer: timer}
}

func (s *scriptedTelemetry) Tick(context.Context) (*readout.Readout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.next == nil {
		return &readout.Readout{}, nil
	}
	return s.next.Clone(), nil
}

func (s *scriptedTelemetry) TriggerEnumeration() error {
	s.enumerations.Add(1)
	return nil
}

type recordingHandler struct {
	mu        sync.Mutex
	events    []string
	readouts  int
	sessions  []Session
	installed chan string
}

func (h *recordingHandler) add(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, fmt.Sprintf(format, args...))
}

func (h *recordingHandler) OnMemoryReadout(*readout.Readout) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readouts++
}

func (h *recordingHandler) OnSongChanged(d *song.Details) { h.add("changed:%s", d.SongID) }
func (h *recordingHandler) OnStateChanged(from, to State) { h.add("state:%v->%v", from, to) }

func (h *recordingHandler) OnSongStarted(s Session) {
	h.add("started:%s", s.SongID)
	h.mu.Lock()
	h.sessions = append(h.sessions, s)
	h.mu.Unlock()
}

func (h *recordingHandler) OnSongEnded(s Session) {
	h.add("ended:%s", s.SongID)
	h.mu.Lock()
	h.sessions = append(h.sessions, s)
	h.mu.Unlock()
}

func (h *recordingHandler) OnContentFileInstalled(path string, success bool) {
	if h.installed == nil || !success {
		return
	}
	select {
	case h.installed <- filepath.Base(path):
	default:
	}
}

func (h *recordingHandler) list() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func cacheWith(t *testing.T, details ...*song.Details) *cache.MemoryCache {
	t.Helper()
	c := cache.NewMemoryCache(nil)
	m := make(map[string]*song.Details)
	for _, d := range details {
		m[d.SongID] = d
	}
	if err := c.Add("/dlc/test_p.psarc", m); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSessionLifecycle(t *testing.T) {
	tel := &scriptedTelemetry{}
	h := &recordingHandler{}
	s := New(tel, cacheWith(t, validSong(60)), h, DefaultOptions(), nil)
	ctx := context.Background()

	for _, timer := range []float32{0, 0.1, 30, 55.1, 0} {
		tel.set("ABC123", timer)
		s.readOnce(ctx)
		s.updateState(ctx)
	}

	want := []string{
		"changed:ABC123",
		"state:None->InMenus",
		"state:InMenus->SongSelected",
		"state:SongSelected->SongPlaying",
		"started:ABC123",
		"state:SongPlaying->SongEnding",
		"state:SongEnding->InMenus",
		"ended:ABC123",
	}
	if diff := cmp.Diff(want, h.list()); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	if h.readouts != 5 {
		t.Errorf("readouts = %d, want 5", h.readouts)
	}

	if len(h.sessions) != 2 {
		t.Fatalf("sessions = %d", len(h.sessions))
	}
	start, end := h.sessions[0], h.sessions[1]
	if start.ID != end.ID {
		t.Errorf("session ids differ: %v %v", start.ID, end.ID)
	}
	if end.Final == nil || end.Final.SongTimer != 0 || end.EndedAt.Before(start.StartedAt) {
		t.Errorf("ended session = %+v", end)
	}

	snap := s.Snapshot()
	if snap.State != InMenus || snap.Song.SongID != "ABC123" || snap.Session != nil {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestUnknownSongStaysInMenus(t *testing.T) {
	tel := &scriptedTelemetry{}
	h := &recordingHandler{}
	c := cache.NewMemoryCache(nil)
	s := New(tel, c, h, DefaultOptions(), nil)
	ctx := context.Background()

	for _, timer := range []float32{0, 5, 10} {
		tel.set("LATE01", timer)
		s.readOnce(ctx)
		s.updateState(ctx)
	}
	if s.State() != InMenus || s.Details() != nil {
		t.Fatalf("state %v with details %v", s.State(), s.Details())
	}

	// Details that arrive later are picked up without the key changing.
	late := validSong(200)
	late.SongID = "LATE01"
	c.Add("/dlc/late_p.psarc", map[string]*song.Details{"LATE01": late})
	s.readOnce(ctx)
	s.updateState(ctx)
	if s.Details().SongID != "LATE01" || s.State() != SongSelected {
		t.Errorf("state %v with details %v", s.State(), s.Details())
	}
}

func TestReadErrorKeepsLastReadout(t *testing.T) {
	tel := &scriptedTelemetry{}
	s := New(tel, nil, nil, DefaultOptions(), nil)

	tel.set("ABC123", 12)
	s.readOnce(context.Background())
	tel.err = fmt.Errorf("read failed")
	s.readOnce(context.Background())

	if ro := s.Readout(); ro == nil || ro.SongTimer != 12 {
		t.Errorf("Readout = %v", ro)
	}
}

func TestPanicInLoopIsRecovered(t *testing.T) {
	s := New(&scriptedTelemetry{}, nil, nil, DefaultOptions(), nil)
	s.running.Store(true)
	s.safely("test", func() { panic("boom") })
}

func TestStartStopWithContent(t *testing.T) {
	base := t.TempDir()
	dlc := filepath.Join(base, "dlc")
	os.MkdirAll(dlc, 0755)
	os.WriteFile(filepath.Join(dlc, "first_p.psarc"),
		[]byte(`{"songs":[{"songID":"FIRST1","songLength":120,"albumYear":1999}]}`), 0644)

	tel := &scriptedTelemetry{}
	h := &recordingHandler{installed: make(chan string, 4)}
	c := cache.NewMemoryCache(nil)
	opts := DefaultOptions()
	opts.ContentDir = base
	opts.Interval = 5 * time.Millisecond
	s := New(tel, c, h, opts, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if err := s.Start(context.Background()); err != ErrAlreadyStarted {
		t.Errorf("second Start err = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for c.Get("FIRST1") == nil {
		if time.Now().After(deadline) {
			t.Fatal("bulk load did not cache FIRST1")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Write outside the watched tree and move in so the archive arrives whole.
	staged := filepath.Join(t.TempDir(), "second_p.psarc")
	os.WriteFile(staged, []byte(`{"songs":[{"songID":"SECOND","songLength":90,"albumYear":2005}]}`), 0644)
	if err := os.Rename(staged, filepath.Join(dlc, "second_p.psarc")); err != nil {
		t.Skipf("cannot move into watched dir: %v", err)
	}

	select {
	case name := <-h.installed:
		if name != "second_p.psarc" {
			t.Errorf("installed %s", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no install event")
	}
	if tel.enumerations.Load() == 0 {
		t.Error("install did not trigger enumeration")
	}
	if c.Get("SECOND") == nil {
		t.Error("installed song not cached")
	}

	s.Stop()
	if s.Running() {
		t.Error("still running after Stop")
	}
}
