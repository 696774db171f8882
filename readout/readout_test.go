package readout

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name string
		c    Counts
		want float32
	}{
		{"no notes", Counts{}, 100},
		{"all hit", Counts{TotalNotesHit: 10}, 100},
		{"all missed", Counts{TotalNotesMissed: 4}, 0},
		{"three quarters", Counts{TotalNotesHit: 3, TotalNotesMissed: 1}, 75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Accuracy(); got != tt.want {
				t.Errorf("Accuracy = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNoteDataVariants(t *testing.T) {
	var nd NoteData = LearnASongCounters{Counts{TotalNotesHit: 1, TotalNotesMissed: 1}}
	if nd.Mode() != ModeLearnASong || nd.Accuracy() != 50 {
		t.Errorf("LearnASong = %v %v", nd.Mode(), nd.Accuracy())
	}

	nd = ScoreAttackCounters{Counts: Counts{TotalNotesHit: 9, TotalNotesMissed: 1}, CurrentScore: 1200}
	if nd.Mode() != ModeScoreAttack || nd.Accuracy() != 90 || nd.Notes().TotalNotes() != 10 {
		t.Errorf("ScoreAttack = %v %v %d", nd.Mode(), nd.Accuracy(), nd.Notes().TotalNotes())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	r := &Readout{SongTimer: 3, SongID: "A", NoteData: LearnASongCounters{}}
	c := r.Clone()
	c.SongID = "B"
	if r.SongID != "A" {
		t.Error("Clone shares fields with the original")
	}
	if !c.Playing() || (&Readout{}).Playing() || (*Readout)(nil).Playing() {
		t.Error("Playing misreports timer state")
	}
}

func TestMarshalJSON(t *testing.T) {
	r := &Readout{
		SongTimer: 12.5,
		SongID:    "ABC123",
		GameStage: "las_game",
		Mode:      ModeLearnASong,
		NoteData:  LearnASongCounters{Counts{TotalNotesHit: 3, TotalNotesMissed: 1}},
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := map[string]any{
		"song_timer":     12.5,
		"song_id":        "ABC123",
		"arrangement_id": "",
		"game_stage":     "las_game",
		"mode":           "LearnASong",
		"accuracy":       75.0,
		"note_data": map[string]any{
			"total_notes_hit":     3.0,
			"current_hit_streak":  0.0,
			"highest_hit_streak":  0.0,
			"total_notes_missed":  1.0,
			"current_miss_streak": 0.0,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("JSON mismatch (-want +got):\n%s", diff)
	}
}
