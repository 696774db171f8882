package diag

import (
	"fmt"
	"strings"
	"sync"
)

// Recorder is a Logger that keeps lines in memory. Tests install it through
// Diagnostics.NewLogger.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *Recorder) Infoln(args ...any)  { r.add("INFO", args) }
func (r *Recorder) Debugln(args ...any) { r.add("DEBUG", args) }
func (r *Recorder) Warn(args ...any)    { r.add("WARN", args) }

func (r *Recorder) add(level string, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, level+" "+strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Contains reports whether any recorded line contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// NewRecording returns Diagnostics whose every component logs into rec.
func NewRecording(rec *Recorder, enabled map[Toggle]bool) *Diagnostics {
	d := New(enabled)
	d.NewLogger = func(string) Logger { return rec }
	return d
}
