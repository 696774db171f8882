package telemetry

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"rocksniff/pointer"
	"rocksniff/process_blob"
	"rocksniff/readout"
	"rocksniff/scanner"

	"github.com/google/go-cmp/cmp"
)

const (
	moduleBase = 0x400000
	heap       = 0x10000

	songIDAt = 0x10100
	timerAt  = 0x10200 + 0x8
	arrAt    = 0x10300
	stageAt  = 0x10400
	flagAt   = 0x10500 + 0x4
	lasAt    = 0x11000
	saAt     = 0x12000
)

func testProfile() Profile {
	return Profile{
		SongID:          pointer.Chain{Entry: 0x10, Offsets: []int64{0}},
		SongIDPrefix:    "Play_",
		SongIDSuffix:    "_Preview",
		SongTimer:       pointer.Chain{Entry: 0x14, Offsets: []int64{0x8}},
		ArrangementHash: pointer.Chain{Entry: 0x18, Offsets: []int64{0}},
		CurrentMenu:     pointer.Chain{Entry: 0x1C, Offsets: []int64{0}},
		LearnASong: NoteLayout{
			Chain: pointer.Chain{Entry: 0x20, Offsets: []int64{0}},
			Check: &MagicCheck{Offset: noteMagicOffset, Value: learnASongMagic},
		},
		ScoreAttack: NoteLayout{
			Chain: pointer.Chain{Entry: 0x24, Offsets: []int64{0}},
			Check: &MagicCheck{Offset: noteMagicOffset, Value: scoreAttackMagic},
		},
		EnumerationFlag: pointer.Chain{Entry: 0x28, Offsets: []int64{0x4}},
		HIRC:            scanner.DefaultHIRCConfig(),
		MaxStringLen:    64,
		MinStageLen:     3,
	}
}

// gameImage maps a module whose static slots point into one heap region.
// The note data slots are left null; tests link them as needed.
func gameImage(t *testing.T) *process_blob.Image {
	t.Helper()
	im := process_blob.NewImage(1, "Rocksmith2014.exe")
	im.Map(moduleBase, make([]byte, 0x1000), "r--p")
	im.SetModuleBase(moduleBase)
	im.Map(heap, make([]byte, 0x4000), "rw-p")

	im.PutUint32(moduleBase+0x10, songIDAt)
	im.PutUint32(moduleBase+0x14, timerAt-0x8)
	im.PutUint32(moduleBase+0x18, arrAt)
	im.PutUint32(moduleBase+0x1C, stageAt)
	im.PutUint32(moduleBase+0x28, flagAt-0x4)
	return im
}

func putLearnASong(im *process_blob.Image, at uint64, hit, streak, highest, missed, missStreak int32) {
	im.PutInt32(at+noteMagicOffset, learnASongMagic)
	im.PutInt32(at+0x30, hit)
	im.PutInt32(at+0x34, streak)
	im.PutInt32(at+0x3C, highest)
	im.PutInt32(at+0x40, missed)
	im.PutInt32(at+0x44, missStreak)
}

func tick(t *testing.T, r *Reader) *readout.Readout {
	t.Helper()
	ro, err := r.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return ro
}

func TestDecodeSongID(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Play_ABC123_Preview", "ABC123", true},
		{"Play_A_Preview", "A", true},
		{"Play__Preview", "", false},
		{"Song_ABC123_Preview", "", false},
		{"Play_ABC123_Previe", "", false},
		{"Play_ABC", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := DecodeSongID(tt.in, "Play_", "_Preview")
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("DecodeSongID(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSongIDKeptWhenDecorationIsWrong(t *testing.T) {
	im := gameImage(t)
	r := NewReader(im, testProfile(), nil)

	im.PutString(songIDAt, "Play_ABC123_Preview")
	if got := tick(t, r).SongID; got != "ABC123" {
		t.Fatalf("SongID = %q, want ABC123", got)
	}

	im.PutString(songIDAt, "Play_XYZ_Previe")
	if got := tick(t, r).SongID; got != "ABC123" {
		t.Errorf("SongID after bad string = %q, want ABC123", got)
	}

	im.PutUint32(moduleBase+0x10, 0)
	if got := tick(t, r).SongID; got != "ABC123" {
		t.Errorf("SongID after broken chain = %q, want ABC123", got)
	}
}

func TestLastKnownGoodOnlyWhilePlaying(t *testing.T) {
	im := gameImage(t)
	im.PutUint32(moduleBase+0x20, lasAt)
	r := NewReader(im, testProfile(), nil)

	im.PutString(songIDAt, "Play_ABC123_Preview")
	im.PutString(arrAt, "0E4E1AD5")
	im.PutString(stageAt, "las_game")
	putLearnASong(im, lasAt, 30, 4, 12, 3, 0)
	im.PutFloat32(timerAt, 12.5)

	want := &readout.Readout{
		SongTimer:     12.5,
		SongID:        "ABC123",
		ArrangementID: "0E4E1AD5",
		GameStage:     "las_game",
		Mode:          readout.ModeLearnASong,
		NoteData: readout.LearnASongCounters{Counts: readout.Counts{
			TotalNotesHit: 30, CurrentHitStreak: 4, HighestHitStreak: 12, TotalNotesMissed: 3,
		}},
	}
	if diff := cmp.Diff(want, tick(t, r)); diff != "" {
		t.Fatalf("playing readout mismatch (-want +got):\n%s", diff)
	}

	// Back in the menus: only the song key and timer move forward.
	im.PutFloat32(timerAt, 0)
	im.PutString(stageAt, "main_menu")
	putLearnASong(im, lasAt, 0, 0, 0, 0, 0)

	want.SongTimer = 0
	if diff := cmp.Diff(want, tick(t, r)); diff != "" {
		t.Errorf("menu readout mismatch (-want +got):\n%s", diff)
	}
}

func TestStageTooShortIsIgnored(t *testing.T) {
	im := gameImage(t)
	r := NewReader(im, testProfile(), nil)
	im.PutFloat32(timerAt, 1)

	im.PutString(stageAt, "sa_game")
	if got := tick(t, r).GameStage; got != "sa_game" {
		t.Fatalf("GameStage = %q", got)
	}
	im.PutString(stageAt, "ab")
	if got := tick(t, r).GameStage; got != "sa_game" {
		t.Errorf("GameStage after short string = %q, want sa_game", got)
	}
}

func TestScoreAttackWhenLearnASongMissing(t *testing.T) {
	im := gameImage(t)
	im.PutUint32(moduleBase+0x24, saAt)
	r := NewReader(im, testProfile(), nil)

	im.PutFloat32(timerAt, 40)
	im.PutInt32(saAt+noteMagicOffset, scoreAttackMagic)
	for off, v := range map[uint64]int32{
		0x3C: 4, 0x44: 9, 0x48: 1, 0x4C: 20, 0x50: 2,
		0x74: 3, 0x78: 11, 0x84: 1, 0x8C: 2, 0xB0: 1,
		0xE4: 12345, 0xE8: 2, 0xEC: 4,
	} {
		im.PutInt32(saAt+off, v)
	}

	ro := tick(t, r)
	if ro.Mode != readout.ModeScoreAttack {
		t.Fatalf("Mode = %v, want ScoreAttack", ro.Mode)
	}
	want := readout.ScoreAttackCounters{
		Counts:                    readout.Counts{TotalNotesHit: 20, CurrentHitStreak: 4, HighestHitStreak: 9, TotalNotesMissed: 2},
		HighestMissStreak:         1,
		CurrentPerfectHitStreak:   3,
		TotalPerfectHits:          11,
		PerfectPhrases:            1,
		PassedPhrases:             2,
		HighestFailedPhraseStreak: 1,
		CurrentScore:              12345,
		CurrentMultiplier:         2,
		HighestMultiplier:         4,
	}
	if diff := cmp.Diff(readout.NoteData(want), ro.NoteData); diff != "" {
		t.Errorf("NoteData mismatch (-want +got):\n%s", diff)
	}
}

func TestMagicCheckGatesPublication(t *testing.T) {
	im := gameImage(t)
	im.PutUint32(moduleBase+0x20, lasAt)
	p := testProfile()
	p.LearnASong.Check = &MagicCheck{Offset: 0x38, Value: 0x1234}
	r := NewReader(im, p, nil)

	im.PutFloat32(timerAt, 3)
	putLearnASong(im, lasAt, 5, 5, 5, 0, 0)
	if ro := tick(t, r); ro.NoteData != nil || ro.Mode != readout.ModeUnknown {
		t.Fatalf("unvalidated struct published: %v", ro)
	}

	im.PutInt32(lasAt+0x38, 0x1234)
	if ro := tick(t, r); ro.Mode != readout.ModeLearnASong || ro.NoteData.Notes().TotalNotesHit != 5 {
		t.Errorf("validated struct not published: %v", ro)
	}
}

func TestZeroedLearnASongDoesNotHideScoreAttack(t *testing.T) {
	im := gameImage(t)
	im.PutUint32(moduleBase+0x20, lasAt)
	im.PutUint32(moduleBase+0x24, saAt)
	r := NewReader(im, testProfile(), nil)

	im.PutFloat32(timerAt, 20)
	im.PutInt32(saAt+noteMagicOffset, scoreAttackMagic)
	im.PutInt32(saAt+0x4C, 120)
	im.PutInt32(saAt+0x50, 4)

	ro := tick(t, r)
	if ro.Mode != readout.ModeScoreAttack {
		t.Fatalf("Mode = %v with note data %v, want ScoreAttack", ro.Mode, ro.NoteData)
	}
	if n := ro.NoteData.Notes(); n.TotalNotesHit != 120 || n.TotalNotesMissed != 4 {
		t.Errorf("counts = %+v", n)
	}
}

func TestLayoutWithoutMagicNeverPublished(t *testing.T) {
	im := gameImage(t)
	im.PutUint32(moduleBase+0x20, lasAt)
	p := testProfile()
	p.LearnASong.Check = nil
	r := NewReader(im, p, nil)

	im.PutFloat32(timerAt, 3)
	putLearnASong(im, lasAt, 5, 2, 3, 1, 0)
	if ro := tick(t, r); ro.NoteData != nil || ro.Mode != readout.ModeUnknown {
		t.Errorf("unvalidated struct published: %v", ro)
	}

	nd, err := decodeLayout[learnASongLayout](r, lasAt, nil)
	if !errors.Is(err, ErrUnvalidated) || nd != nil {
		t.Errorf("decodeLayout without check = %v, %v", nd, err)
	}
}

func TestImplausibleCountersRejected(t *testing.T) {
	im := gameImage(t)
	im.PutUint32(moduleBase+0x20, lasAt)
	r := NewReader(im, testProfile(), nil)

	im.PutFloat32(timerAt, 3)
	putLearnASong(im, lasAt, 2, 7, 1, 0, 0)
	if ro := tick(t, r); ro.NoteData != nil {
		t.Errorf("implausible counters published: %v", ro)
	}
}

func TestMagicScanOnlyBetweenSongs(t *testing.T) {
	im := gameImage(t)
	p := testProfile()
	p.LearnASong = NoteLayout{Scan: &scanner.MagicSpec{Magic: 0x4C41534E, StructOffset: 0x38}}
	r := NewReader(im, p, nil)

	const at = 0x13000
	im.PutFloat32(timerAt, 5)
	if ro := tick(t, r); ro.NoteData != nil {
		t.Fatal("note data without a struct in memory")
	}

	// Struct appears mid song; no scan while the timer runs.
	im.PutInt32(at+0x38, 0x4C41534E)
	putLearnASong(im, at, 8, 2, 6, 1, 0)
	if ro := tick(t, r); ro.NoteData != nil {
		t.Fatal("magic scan ran while playing")
	}

	im.PutFloat32(timerAt, 0)
	tick(t, r)
	im.PutFloat32(timerAt, 1)
	ro := tick(t, r)
	if ro.Mode != readout.ModeLearnASong || ro.NoteData.Notes().TotalNotesHit != 8 {
		t.Fatalf("scan between songs did not find the struct: %v", ro)
	}
	if _, ok := r.learnASong.Get(); !ok {
		t.Fatal("scan result not trusted")
	}

	// A struct that stops validating is dropped.
	putLearnASong(im, at, 1, 9, 0, 0, 0)
	tick(t, r)
	if _, ok := r.learnASong.Get(); ok {
		t.Error("invalid trusted struct kept")
	}
}

func TestTriggerEnumeration(t *testing.T) {
	im := gameImage(t)
	r := NewReader(im, testProfile(), nil)

	if err := r.TriggerEnumeration(); err != nil {
		t.Fatalf("TriggerEnumeration: %v", err)
	}
	if b, _ := im.Bytes(heap); b[flagAt-heap] != 1 {
		t.Errorf("flag byte = %d, want 1", b[flagAt-heap])
	}

	im.PutUint32(moduleBase+0x28, 0)
	if err := r.TriggerEnumeration(); !errors.Is(err, ErrUnresolved) {
		t.Errorf("TriggerEnumeration on broken chain err = %v", err)
	}
}

func TestHIRCFallbackWithoutSongIDChain(t *testing.T) {
	im := gameImage(t)
	block := make([]byte, 0x1000)
	// HIRC section of 12 bytes, then the STID naming the preview bank.
	name := "Song_ABC123_Preview"
	copy(block[0x100:], "HIRC")
	binary.LittleEndian.PutUint32(block[0x104:], 12)
	stid := block[0x100+8+16:]
	binary.LittleEndian.PutUint32(stid, uint32(17+len(name)-4))
	stid[16] = byte(len(name))
	copy(stid[17:], name)
	im.Map(moduleBase+0x10000, block, "rw-p")

	p := testProfile()
	p.SongID = pointer.Chain{}
	p.HIRC.Start = 0x10000
	p.HIRC.End = 0x11000
	r := NewReader(im, p, nil)

	if got := tick(t, r).SongID; got != "ABC123" {
		t.Errorf("SongID = %q, want ABC123", got)
	}
}

func TestDefaultProfileEditions(t *testing.T) {
	tests := []struct {
		edition Edition
		timer   uint64
	}{
		{EditionBeta, 0x00F5C5AC},
		{EditionRemastered, 0x00F5C5AC + 0x3080},
		{EditionLearnAndPlay, 0x00F5C5AC + 0x4080},
	}
	for _, tt := range tests {
		t.Run(string(tt.edition), func(t *testing.T) {
			p, err := DefaultProfile(tt.edition)
			if err != nil {
				t.Fatal(err)
			}
			if p.SongTimer.Entry != tt.timer {
				t.Errorf("SongTimer entry = %#x, want %#x", p.SongTimer.Entry, tt.timer)
			}
			if diff := cmp.Diff([]int64{0x8, 0x4}, p.EnumerationFlag.Offsets); diff != "" {
				t.Errorf("EnumerationFlag offsets (-want +got):\n%s", diff)
			}
			if p.LearnASong.check() == nil || p.ScoreAttack.check() == nil {
				t.Error("default note layouts carry no magic check")
			}
		})
	}

	if _, err := DefaultProfile("steam_deck"); !errors.Is(err, ErrUnknownEdition) {
		t.Errorf("unknown edition err = %v", err)
	}
}

func TestLoadProfileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	os.WriteFile(path, []byte(`{
		"edition": "beta",
		"song_timer": {"entry": 4096, "offsets": [16]},
		"learn_a_song": {"chain": {"entry": 8192, "offsets": [0]}, "check": {"offset": 56, "value": 42}}
	}`), 0644)

	base, _ := DefaultProfile(EditionRemastered)
	p, err := LoadProfile(path, base)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Edition != EditionBeta || p.SongTimer.Entry != 4096 || p.SongID.Entry != 0x00F5C494 {
		t.Errorf("LoadProfile = %+v", p)
	}
	if p.LearnASong.Check == nil || p.LearnASong.Check.Value != 42 {
		t.Errorf("LearnASong check = %+v", p.LearnASong.Check)
	}
}
