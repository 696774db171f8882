package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"rocksniff/pointer"
	"rocksniff/scanner"
)

var ErrUnknownEdition = errors.New("unknown edition")

// Edition picks the build whose static addresses the profile uses.
type Edition string

const (
	EditionBeta         Edition = "beta"
	EditionRemastered   Edition = "remastered"
	EditionLearnAndPlay Edition = "learn_and_play"
)

// Delta is how far the static entries of e sit from the beta build.
func (e Edition) Delta() (uint64, error) {
	switch e {
	case EditionBeta:
		return 0, nil
	case EditionRemastered, "":
		return 0x3080, nil
	case EditionLearnAndPlay:
		return 0x4080, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEdition, e)
}

// MagicCheck accepts a struct only when the int32 at Offset from its base
// equals Value.
type MagicCheck struct {
	Offset int64 `json:"offset"`
	Value  int32 `json:"value"`
}

// check returns the magic that validates l, or nil when nothing can.
func (l NoteLayout) check() *MagicCheck {
	if l.Check != nil {
		return l.Check
	}
	if l.Scan != nil {
		return &MagicCheck{Offset: l.Scan.StructOffset, Value: l.Scan.Magic}
	}
	return nil
}

// NoteLayout locates one of the performance counter structs.
type NoteLayout struct {
	Chain pointer.Chain `json:"chain"`

	// Check must pass before the struct is published. A layout without one
	// is validated by its Scan magic instead, and a layout with neither is
	// never published.
	Check *MagicCheck `json:"check,omitempty"`

	// Scan, when set, relocates the struct by magic value if the chain
	// fails. Only run between songs.
	Scan *scanner.MagicSpec `json:"scan,omitempty"`
}

// Profile is every build-specific constant the reader needs.
type Profile struct {
	Edition Edition `json:"edition"`

	SongID       pointer.Chain `json:"song_id"`
	SongIDPrefix string        `json:"song_id_prefix"`
	SongIDSuffix string        `json:"song_id_suffix"`

	SongTimer       pointer.Chain `json:"song_timer"`
	ArrangementHash pointer.Chain `json:"arrangement_hash"`
	CurrentMenu     pointer.Chain `json:"current_menu"`
	EnumerationFlag pointer.Chain `json:"enumeration_flag"`

	LearnASong  NoteLayout `json:"learn_a_song"`
	ScoreAttack NoteLayout `json:"score_attack"`

	// HIRC locates the song key when SongID is empty.
	HIRC scanner.HIRCConfig `json:"hirc"`

	MaxStringLen int `json:"max_string_len"`
	MinStageLen  int `json:"min_stage_len"`
}

// beta build entry points
const (
	entryEnumerationFlag = 0xF71E10
	entrySongID          = 0x00F5C494
	entryGame            = 0x00F5C5AC
)

// Struct tags of the counter blocks. They move with game updates; override
// them through a profile file.
const (
	learnASongMagic  = 0x4C41534E
	scoreAttackMagic = 0x53434154
	noteMagicOffset  = 0x38
)

func DefaultProfile(e Edition) (Profile, error) {
	delta, err := e.Delta()
	if err != nil {
		return Profile{}, err
	}
	if e == "" {
		e = EditionRemastered
	}
	chain := func(entry uint64, offsets ...int64) pointer.Chain {
		return pointer.Chain{Entry: entry + delta, Offsets: offsets}
	}
	return Profile{
		Edition:         e,
		SongID:          chain(entrySongID, 0xBC, 0x0),
		SongIDPrefix:    "Play_",
		SongIDSuffix:    "_Preview",
		SongTimer:       chain(entryGame, 0xB0, 0x538, 0x8),
		ArrangementHash: chain(entryGame, 0x18, 0x18, 0xC, 0x1C0, 0x0),
		CurrentMenu:     chain(entryGame, 0x18, 0x18, 0xC, 0x14),
		EnumerationFlag: chain(entryEnumerationFlag, 0x8, 0x4),
		LearnASong:      NoteLayout{Chain: chain(entryGame, 0xB0, 0x18, 0x4, 0x84, 0x0), Check: &MagicCheck{Offset: noteMagicOffset, Value: learnASongMagic}},
		ScoreAttack:     NoteLayout{Chain: chain(entryGame, 0xB0, 0x18, 0x4, 0x4C, 0x0), Check: &MagicCheck{Offset: noteMagicOffset, Value: scoreAttackMagic}},
		HIRC:            scanner.DefaultHIRCConfig(),
		MaxStringLen:    128,
		MinStageLen:     3,
	}, nil
}

// LoadProfile reads a JSON profile from path over the defaults of the
// edition it names (or of base's edition when it names none). Entries in the
// file are absolute; no edition delta is applied to them.
func LoadProfile(path string, base Profile) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}

	var head struct {
		Edition Edition `json:"edition"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Profile{}, fmt.Errorf("bad profile %s: %w", path, err)
	}
	p := base
	if head.Edition != "" && head.Edition != base.Edition {
		if p, err = DefaultProfile(head.Edition); err != nil {
			return Profile{}, err
		}
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("bad profile %s: %w", path, err)
	}
	return p, nil
}
