package song

import (
	"fmt"
	"math"
	"strings"
)

// Tuning holds per-string semitone offsets from E standard.
type Tuning struct {
	String0     int `json:"String0"`
	String1     int `json:"String1"`
	String2     int `json:"String2"`
	String3     int `json:"String3"`
	String4     int `json:"String4"`
	String5     int `json:"String5"`
	CentsOffset int `json:"CentsOffset"`
	CapoFret    int `json:"CapoFret"`
}

const unsetTuning = -999

// InvalidTuning is what an arrangement without tuning data reports.
var InvalidTuning = Tuning{unsetTuning, unsetTuning, unsetTuning, unsetTuning, unsetTuning, unsetTuning, unsetTuning, unsetTuning}

func (t Tuning) strings() [6]int {
	return [6]int{t.String0, t.String1, t.String2, t.String3, t.String4, t.String5}
}

type namedTuning struct {
	name    string
	strings [6]int
}

var standardNames = []string{"E", "Eb", "D", "C#", "C", "B", "Bb", "A", "Ab", "G", "F#", "F"}

var namedTunings = func() []namedTuning {
	var out []namedTuning
	for i, n := range standardNames {
		o := -i
		out = append(out, namedTuning{n + " Standard", [6]int{o, o, o, o, o, o}})
	}
	for i, n := range standardNames[1:] {
		o := -(i + 1)
		out = append(out, namedTuning{n + " Standard", [6]int{o, o, o, o, 0, 0}})
	}

	out = append(out, namedTuning{"Drop D", [6]int{-2, 0, 0, 0, 0, 0}})
	drops := []string{"Eb Drop Db", "D Drop C", "C# Drop B", "C Drop Bb", "B Drop A", "Bb Drop Ab", "A Drop G"}
	for i, n := range drops {
		o := -(i + 1)
		out = append(out, namedTuning{n, [6]int{o - 2, o, o, o, o, o}})
	}

	return append(out,
		namedTuning{"Open A", [6]int{0, 0, 2, 2, 2, 0}},
		namedTuning{"Open B", [6]int{-5, -3, -3, -1, 0, -1}},
		namedTuning{"Open C", [6]int{-4, -2, -2, 0, 1, 0}},
		namedTuning{"Open D", [6]int{-2, 0, 0, -1, -2, -2}},
		namedTuning{"Open E", [6]int{0, 2, 2, 1, 0, 0}},
		namedTuning{"Open G", [6]int{-2, -2, 0, 0, 0, -2}},
		namedTuning{"DADGAD", [6]int{-2, 0, 0, 0, -2, -2}},
		namedTuning{"Double Drop D", [6]int{-2, 0, 0, 0, 0, -2}},
	)
}()

// Name returns a display name like "Drop D" or "E Standard: A432 (Capo Fret 2)".
// Cents and capo are ignored when matching the string offsets.
func (t Tuning) Name() string {
	name := "Custom Tuning"
	s := t.strings()
	for _, nt := range namedTunings {
		if nt.strings == s {
			name = nt.name
			break
		}
	}

	if t.CentsOffset != 0 && t.CentsOffset != unsetTuning {
		name = fmt.Sprintf("%s: A%d", name, int(math.Floor(440*math.Pow(2, float64(t.CentsOffset)/1200))))
	}
	if t.CapoFret != 0 && t.CapoFret != unsetTuning {
		name = fmt.Sprintf("%s (Capo Fret %d)", name, t.CapoFret)
	}
	return strings.TrimSpace(name)
}
