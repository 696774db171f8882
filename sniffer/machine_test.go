package sniffer

import (
	"testing"

	"rocksniff/song"

	"github.com/google/go-cmp/cmp"
)

func validSong(length float32) *song.Details {
	return &song.Details{SongID: "ABC123", SongName: "Test", SongLength: length, AlbumYear: 2014}
}

func TestTransitions(t *testing.T) {
	valid := validSong(60)
	tests := []struct {
		name    string
		from    State
		timer   float32
		details *song.Details
		want    State
	}{
		{"none goes to menus", None, 10, valid, InMenus},
		{"menus stay with zero timer", InMenus, 0, valid, InMenus},
		{"menus to selected", InMenus, 0.1, valid, SongSelected},
		{"selected to starting", SongSelected, 0, valid, SongStarting},
		{"selected stays below one second", SongSelected, 0.5, valid, SongSelected},
		{"selected skips to playing", SongSelected, 1.5, valid, SongPlaying},
		{"starting to playing", SongStarting, 0.01, valid, SongPlaying},
		{"starting waits for timer", SongStarting, 0, valid, SongStarting},
		{"playing continues", SongPlaying, 54.9, valid, SongPlaying},
		{"playing to ending at margin", SongPlaying, 55, valid, SongEnding},
		{"playing quit to menus", SongPlaying, 0, valid, InMenus},
		{"quit wins over ending on short song", SongPlaying, 0, validSong(3), InMenus},
		{"ending waits for timer", SongEnding, 58, valid, SongEnding},
		{"ending to menus", SongEnding, 0, valid, InMenus},
		{"invalid details force menus", SongPlaying, 30, &song.Details{SongID: "X"}, InMenus},
		{"missing details force menus", SongSelected, 5, nil, InMenus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Machine{state: tt.from}
			tr, changed := m.Evaluate(tt.timer, tt.details)
			if m.State() != tt.want {
				t.Fatalf("%v with timer %v -> %v, want %v", tt.from, tt.timer, m.State(), tt.want)
			}
			if changed != (tt.from != tt.want) {
				t.Errorf("changed = %v", changed)
			}
			if changed && (tr.From != tt.from || tr.To != tt.want) {
				t.Errorf("transition = %+v", tr)
			}
		})
	}
}

func TestStartedAndEndedFlags(t *testing.T) {
	tests := []struct {
		from, to State
		started  bool
		ended    bool
	}{
		{InMenus, SongSelected, false, false},
		{SongSelected, SongStarting, true, false},
		{SongSelected, SongPlaying, true, false},
		{SongStarting, SongPlaying, false, false},
		{SongPlaying, SongEnding, false, false},
		{SongPlaying, InMenus, false, true},
		{SongEnding, InMenus, false, true},
		{SongSelected, InMenus, false, true},
		{None, InMenus, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			m := &Machine{state: tt.from}
			timer, details := stimulus(tt.from, tt.to)
			tr, ok := m.Evaluate(timer, details)
			if !ok || tr.To != tt.to {
				t.Fatalf("could not drive %v to %v: %+v", tt.from, tt.to, tr)
			}
			if tr.Started != tt.started || tr.Ended != tt.ended {
				t.Errorf("started=%v ended=%v, want %v %v", tr.Started, tr.Ended, tt.started, tt.ended)
			}
		})
	}
}

// stimulus picks a timer and details that move from into to.
func stimulus(from, to State) (float32, *song.Details) {
	d := validSong(60)
	switch {
	case to == InMenus && from == SongSelected:
		return 0.5, nil
	case to == InMenus, to == SongStarting:
		return 0, d
	case to == SongSelected:
		return 0.1, d
	case to == SongPlaying:
		return 5, d
	case to == SongEnding:
		return 57, d
	}
	return 0, d
}

func TestFullSongScenario(t *testing.T) {
	d := validSong(60)
	m := NewMachine()

	var states []State
	started, ended := 0, 0
	for _, timer := range []float32{0, 0, 0, 0.1, 30, 55.1, 0} {
		tr, ok := m.Evaluate(timer, d)
		if !ok {
			continue
		}
		states = append(states, tr.To)
		if tr.Started {
			started++
		}
		if tr.Ended {
			ended++
		}
	}

	want := []State{InMenus, SongSelected, SongPlaying, SongEnding, InMenus}
	if diff := cmp.Diff(want, states); diff != "" {
		t.Errorf("states (-want +got):\n%s", diff)
	}
	if started != 1 || ended != 1 {
		t.Errorf("started %d, ended %d; want one each", started, ended)
	}
}

func TestStateString(t *testing.T) {
	if got := SongPlaying.String(); got != "SongPlaying" {
		t.Errorf("String = %q", got)
	}
	if got := State(42).String(); got != "Unknown" {
		t.Errorf("String of bad state = %q", got)
	}
	if !SongEnding.Playing() || InMenus.Playing() {
		t.Error("Playing")
	}
}
