// Package readout is the snapshot the telemetry reader produces each tick.
package readout

import (
	"encoding/json"
	"fmt"
)

// Mode is the game mode the note counters were read from.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeLearnASong
	ModeScoreAttack
)

func (m Mode) String() string {
	switch m {
	case ModeLearnASong:
		return "LearnASong"
	case ModeScoreAttack:
		return "ScoreAttack"
	}
	return "Unknown"
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Readout is immutable once published. Use Clone to derive a new one.
type Readout struct {
	SongTimer     float32
	SongID        string
	ArrangementID string
	GameStage     string
	Mode          Mode
	NoteData      NoteData
}

// Playing reports whether a song timer is running.
func (r *Readout) Playing() bool {
	return r != nil && r.SongTimer > 0
}

// Clone returns a copy. NoteData values are immutable so they are shared.
func (r *Readout) Clone() *Readout {
	if r == nil {
		return &Readout{}
	}
	c := *r
	return &c
}

func (r *Readout) String() string {
	s := fmt.Sprintf("SID: %s t: %.2f stage: %s mode: %s", r.SongID, r.SongTimer, r.GameStage, r.Mode)
	if r.NoteData != nil {
		c := r.NoteData.Notes()
		s += fmt.Sprintf(" hits: %d misses: %d streak: %d hstreak: %d mstreak: %d",
			c.TotalNotesHit, c.TotalNotesMissed, c.CurrentHitStreak, c.HighestHitStreak, c.CurrentMissStreak)
	}
	return s
}

type readoutJSON struct {
	SongTimer     float32         `json:"song_timer"`
	SongID        string          `json:"song_id"`
	ArrangementID string          `json:"arrangement_id"`
	GameStage     string          `json:"game_stage"`
	Mode          Mode            `json:"mode"`
	NoteData      json.RawMessage `json:"note_data,omitempty"`
	Accuracy      *float32        `json:"accuracy,omitempty"`
}

func (r *Readout) MarshalJSON() ([]byte, error) {
	out := readoutJSON{
		SongTimer:     r.SongTimer,
		SongID:        r.SongID,
		ArrangementID: r.ArrangementID,
		GameStage:     r.GameStage,
		Mode:          r.Mode,
	}
	if r.NoteData != nil {
		nd, err := json.Marshal(r.NoteData)
		if err != nil {
			return nil, err
		}
		out.NoteData = nd
		acc := r.NoteData.Accuracy()
		out.Accuracy = &acc
	}
	return json.Marshal(out)
}
