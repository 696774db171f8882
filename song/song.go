// Package song holds the metadata the cache stores per song key.
package song

import (
	"fmt"
	"strings"
)

// Details describes one song inside a content file. The JSON names are the
// on-disk cache format.
type Details struct {
	SongID       string        `json:"songID"`
	SongName     string        `json:"songName"`
	ArtistName   string        `json:"artistName"`
	AlbumName    string        `json:"albumName"`
	SongLength   float32       `json:"songLength"`
	AlbumYear    int           `json:"albumYear"`
	Arrangements []Arrangement `json:"arrangements"`
	Toolkit      Toolkit       `json:"toolkit"`

	// AlbumArt is the encoded cover image, if any. It is never decoded here.
	AlbumArt []byte `json:"albumArt,omitempty"`

	FileHash string `json:"psarcFileHash"`
}

// IsValid reports whether the details look like they were parsed from a real
// song rather than left at their zero values.
func (d *Details) IsValid() bool {
	return d != nil && !(d.SongLength == 0 && d.AlbumYear == 0 && len(d.Arrangements) == 0)
}

func (d *Details) String() string {
	if d == nil {
		return "<nil>"
	}
	art := "N"
	if len(d.AlbumArt) > 0 {
		art = "Y"
	}
	return fmt.Sprintf("%s: %s - %s, album:%s, yr:%d, len:%.1f, art:%s",
		d.SongID, d.ArtistName, d.SongName, d.AlbumName, d.AlbumYear, d.SongLength, art)
}

// Arrangement looks up an arrangement by its ID.
func (d *Details) Arrangement(id string) (Arrangement, bool) {
	if d == nil {
		return Arrangement{}, false
	}
	for _, a := range d.Arrangements {
		if strings.EqualFold(a.ArrangementID, id) {
			return a, true
		}
	}
	return Arrangement{}, false
}

// TooManyArrangements is true for songs the game is known to crash on.
func (d *Details) TooManyArrangements() bool {
	return d != nil && len(d.Arrangements) >= 6
}

type ArrangementType string

const (
	Lead   ArrangementType = "Lead"
	Rhythm ArrangementType = "Rhythm"
	Bass   ArrangementType = "Bass"
)

type Arrangement struct {
	Name          string          `json:"name"`
	ArrangementID string          `json:"arrangementID"`
	Type          ArrangementType `json:"type"`
	IsBonus       bool            `json:"isBonusArrangement"`
	IsAlternate   bool            `json:"isAlternateArrangement"`
	Tuning        Tuning          `json:"tuning"`

	Sections         []Section         `json:"sections"`
	PhraseIterations []PhraseIteration `json:"phraseIterations"`

	TotalNotes   int    `json:"totalNotes,omitempty"`
	NoteDataHash string `json:"noteDataHash,omitempty"`
}

type Section struct {
	Name      string  `json:"name"`
	StartTime float32 `json:"startTime"`
	EndTime   float32 `json:"endTime"`
}

type PhraseIteration struct {
	Name          string  `json:"name"`
	PhraseID      int     `json:"phraseId"`
	MaxDifficulty int     `json:"maxDifficulty"`
	StartTime     float32 `json:"startTime"`
	EndTime       float32 `json:"endTime"`
}

// Toolkit is the provenance stamp custom content carries.
type Toolkit struct {
	Version        string `json:"version"`
	Author         string `json:"author"`
	PackageVersion string `json:"package_version"`
	Comment        string `json:"comment"`
}
