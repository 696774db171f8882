// Package diag carries the logging toggles and per-component loggers handed
// to every constructor.
package diag

import (
	"sort"
	"strings"
	"sync"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Logger is the subset of *logger.Logger components use.
type Logger interface {
	Infoln(args ...any)
	Debugln(args ...any)
	Warn(args ...any)
}

var _ Logger = (*logger.Logger)(nil)

// Toggle names one optional diagnostic stream.
type Toggle string

const (
	Cache           Toggle = "cache"
	HIRCScan        Toggle = "hirc_scan"
	MagicScan       Toggle = "magic_scan"
	MemoryReadout   Toggle = "memory_readout"
	SongDetails     Toggle = "song_details"
	HandleQuery     Toggle = "handle_query"
	FileDetails     Toggle = "file_details"
	StateMachine    Toggle = "state_machine"
	ProcessingQueue Toggle = "processing_queue"
)

// All lists every toggle in display order.
var All = []Toggle{Cache, HIRCScan, MagicScan, MemoryReadout, SongDetails, HandleQuery, FileDetails, StateMachine, ProcessingQueue}

// Diagnostics is safe for concurrent use. The zero value has every toggle off
// and logs through gologger.
type Diagnostics struct {
	mu      sync.RWMutex
	enabled map[Toggle]bool
	loggers map[string]Logger

	// NewLogger builds the logger for a component name. Tests replace it.
	NewLogger func(component string) Logger
}

func New(enabled map[Toggle]bool) *Diagnostics {
	d := &Diagnostics{enabled: make(map[Toggle]bool)}
	for t, on := range enabled {
		d.enabled[t] = on
	}
	return d
}

// Parse accepts a comma separated toggle list; "all" enables everything.
func Parse(list string) (map[Toggle]bool, bool) {
	out := make(map[Toggle]bool)
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		if name == "all" {
			for _, t := range All {
				out[t] = true
			}
			continue
		}
		if !known(Toggle(name)) {
			return nil, false
		}
		out[Toggle(name)] = true
	}
	return out, true
}

func known(t Toggle) bool {
	for _, k := range All {
		if k == t {
			return true
		}
	}
	return false
}

// Enabled is nil-safe so components can hold an optional *Diagnostics.
func (d *Diagnostics) Enabled(t Toggle) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled[t]
}

func (d *Diagnostics) Set(t Toggle, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enabled == nil {
		d.enabled = make(map[Toggle]bool)
	}
	d.enabled[t] = on
}

// EnabledList returns the enabled toggles, sorted.
func (d *Diagnostics) EnabledList() []Toggle {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Toggle
	for t, on := range d.enabled {
		if on {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Logger returns the logger for component, creating it on first use.
func (d *Diagnostics) Logger(component string) Logger {
	if d == nil {
		return defaultLogger(component)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.loggers[component]; ok {
		return l
	}
	if d.loggers == nil {
		d.loggers = make(map[string]Logger)
	}
	build := d.NewLogger
	if build == nil {
		build = defaultLogger
	}
	l := build(component)
	d.loggers[component] = l
	return l
}

// Debug logs through component's logger only when t is enabled.
func (d *Diagnostics) Debug(t Toggle, component string, args ...any) {
	if !d.Enabled(t) {
		return
	}
	d.Logger(component).Debugln(args...)
}

func defaultLogger(component string) Logger {
	return logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, component))
}
