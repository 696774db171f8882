package sniffer

import "rocksniff/song"

// endMargin is how close to the song length the timer must get before the
// song counts as ending.
const endMargin = 5

// Transition is the outcome of an evaluation that changed state.
type Transition struct {
	From, To State

	// Started is set when a song begins from the menus or song selection.
	Started bool
	// Ended is set on any return to the menus.
	Ended bool
}

// Machine is not safe for concurrent use; the state loop owns it.
type Machine struct {
	state State
}

func NewMachine() *Machine {
	return &Machine{}
}

func (m *Machine) State() State {
	return m.state
}

// Evaluate advances the machine with one timer sample and the details of the
// song the timer belongs to. ok is false when the state did not change.
func (m *Machine) Evaluate(timer float32, details *song.Details) (t Transition, ok bool) {
	next := m.state
	switch m.state {
	case None:
		next = InMenus
	case InMenus:
		if timer != 0 {
			next = SongSelected
		}
	case SongSelected:
		if timer == 0 {
			next = SongStarting
		}
		// Missed the start, or the song was restarted.
		if timer > 1 {
			next = SongPlaying
		}
	case SongStarting:
		if timer > 0 {
			next = SongPlaying
		}
	case SongPlaying:
		if details.IsValid() && timer >= details.SongLength-endMargin {
			next = SongEnding
		}
		// Quit to the menus.
		if timer == 0 {
			next = InMenus
		}
	case SongEnding:
		if timer == 0 {
			next = InMenus
		}
	}

	if !details.IsValid() {
		next = InMenus
	}

	if next == m.state {
		return Transition{}, false
	}
	t = Transition{From: m.state, To: next}
	switch {
	case (t.From == InMenus || t.From == SongSelected) && (t.To == SongStarting || t.To == SongPlaying):
		t.Started = true
	case t.To == InMenus && t.From != None:
		t.Ended = true
	}
	m.state = next
	return t, true
}
