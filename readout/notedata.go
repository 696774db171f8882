package readout

// NoteData is implemented only by LearnASongCounters and ScoreAttackCounters.
type NoteData interface {
	Mode() Mode
	Notes() Counts
	Accuracy() float32
	isNoteData()
}

// Counts are the counters every mode exposes.
type Counts struct {
	TotalNotesHit     int32 `json:"total_notes_hit"`
	CurrentHitStreak  int32 `json:"current_hit_streak"`
	HighestHitStreak  int32 `json:"highest_hit_streak"`
	TotalNotesMissed  int32 `json:"total_notes_missed"`
	CurrentMissStreak int32 `json:"current_miss_streak"`
}

func (c Counts) TotalNotes() int32 {
	return c.TotalNotesHit + c.TotalNotesMissed
}

// Accuracy is the hit percentage, 100 when nothing has been played yet.
func (c Counts) Accuracy() float32 {
	total := c.TotalNotes()
	if total <= 0 {
		return 100
	}
	return float32(c.TotalNotesHit) / float32(total) * 100
}

func (c Counts) Notes() Counts {
	return c
}

type LearnASongCounters struct {
	Counts
}

func (LearnASongCounters) Mode() Mode  { return ModeLearnASong }
func (LearnASongCounters) isNoteData() {}

type ScoreAttackCounters struct {
	Counts
	HighestMissStreak int32 `json:"highest_miss_streak"`

	CurrentPerfectHitStreak int32 `json:"current_perfect_hit_streak"`
	TotalPerfectHits        int32 `json:"total_perfect_hits"`
	CurrentLateHitStreak    int32 `json:"current_late_hit_streak"`
	TotalLateHits           int32 `json:"total_late_hits"`

	PerfectPhrases int32 `json:"perfect_phrases"`
	GoodPhrases    int32 `json:"good_phrases"`
	PassedPhrases  int32 `json:"passed_phrases"`
	FailedPhrases  int32 `json:"failed_phrases"`

	CurrentPerfectPhraseStreak int32 `json:"current_perfect_phrase_streak"`
	CurrentGoodPhraseStreak    int32 `json:"current_good_phrase_streak"`
	CurrentPassedPhraseStreak  int32 `json:"current_passed_phrase_streak"`
	CurrentFailedPhraseStreak  int32 `json:"current_failed_phrase_streak"`

	HighestPerfectPhraseStreak int32 `json:"highest_perfect_phrase_streak"`
	HighestGoodPhraseStreak    int32 `json:"highest_good_phrase_streak"`
	HighestPassedPhraseStreak  int32 `json:"highest_passed_phrase_streak"`
	HighestFailedPhraseStreak  int32 `json:"highest_failed_phrase_streak"`

	CurrentScore      int32 `json:"current_score"`
	CurrentMultiplier int32 `json:"current_multiplier"`
	HighestMultiplier int32 `json:"highest_multiplier"`
}

func (ScoreAttackCounters) Mode() Mode  { return ModeScoreAttack }
func (ScoreAttackCounters) isNoteData() {}
