package telemetry

import "rocksniff/readout"

// learnASongLayout mirrors the riff repeater / learn a song counters.
type learnASongLayout struct {
	_                 [0x30]byte
	TotalNotesHit     int32 // 0x30
	CurrentHitStreak  int32 // 0x34
	_                 int32
	HighestHitStreak  int32 // 0x3C
	TotalNotesMissed  int32 // 0x40
	CurrentMissStreak int32 // 0x44
}

func (l learnASongLayout) counts() readout.Counts {
	return readout.Counts{
		TotalNotesHit:     l.TotalNotesHit,
		CurrentHitStreak:  l.CurrentHitStreak,
		HighestHitStreak:  l.HighestHitStreak,
		TotalNotesMissed:  l.TotalNotesMissed,
		CurrentMissStreak: l.CurrentMissStreak,
	}
}

func (l learnASongLayout) noteData() readout.NoteData {
	return readout.LearnASongCounters{Counts: l.counts()}
}

type scoreAttackLayout struct {
	_                 [0x3C]byte
	CurrentHitStreak  int32 // 0x3C
	CurrentMissStreak int32 // 0x40
	HighestHitStreak  int32 // 0x44
	HighestMissStreak int32 // 0x48
	TotalNotesHit     int32 // 0x4C
	TotalNotesMissed  int32 // 0x50
	_                 [0x20]byte

	CurrentPerfectHitStreak int32 // 0x74
	TotalPerfectHits        int32
	CurrentLateHitStreak    int32
	TotalLateHits           int32

	PerfectPhrases int32 // 0x84
	GoodPhrases    int32
	PassedPhrases  int32
	FailedPhrases  int32

	CurrentPerfectPhraseStreak int32 // 0x94
	CurrentGoodPhraseStreak    int32
	CurrentPassedPhraseStreak  int32
	CurrentFailedPhraseStreak  int32

	HighestPerfectPhraseStreak int32 // 0xA4
	HighestGoodPhraseStreak    int32
	HighestPassedPhraseStreak  int32
	HighestFailedPhraseStreak  int32 // 0xB0
	_                          [0x30]byte

	CurrentScore      int32 // 0xE4
	CurrentMultiplier int32
	HighestMultiplier int32
}

func (l scoreAttackLayout) counts() readout.Counts {
	return readout.Counts{
		TotalNotesHit:     l.TotalNotesHit,
		CurrentHitStreak:  l.CurrentHitStreak,
		HighestHitStreak:  l.HighestHitStreak,
		TotalNotesMissed:  l.TotalNotesMissed,
		CurrentMissStreak: l.CurrentMissStreak,
	}
}

func (l scoreAttackLayout) noteData() readout.NoteData {
	return readout.ScoreAttackCounters{
		Counts:                     l.counts(),
		HighestMissStreak:          l.HighestMissStreak,
		CurrentPerfectHitStreak:    l.CurrentPerfectHitStreak,
		TotalPerfectHits:           l.TotalPerfectHits,
		CurrentLateHitStreak:       l.CurrentLateHitStreak,
		TotalLateHits:              l.TotalLateHits,
		PerfectPhrases:             l.PerfectPhrases,
		GoodPhrases:                l.GoodPhrases,
		PassedPhrases:              l.PassedPhrases,
		FailedPhrases:              l.FailedPhrases,
		CurrentPerfectPhraseStreak: l.CurrentPerfectPhraseStreak,
		CurrentGoodPhraseStreak:    l.CurrentGoodPhraseStreak,
		CurrentPassedPhraseStreak:  l.CurrentPassedPhraseStreak,
		CurrentFailedPhraseStreak:  l.CurrentFailedPhraseStreak,
		HighestPerfectPhraseStreak: l.HighestPerfectPhraseStreak,
		HighestGoodPhraseStreak:    l.HighestGoodPhraseStreak,
		HighestPassedPhraseStreak:  l.HighestPassedPhraseStreak,
		HighestFailedPhraseStreak:  l.HighestFailedPhraseStreak,
		CurrentScore:               l.CurrentScore,
		CurrentMultiplier:          l.CurrentMultiplier,
		HighestMultiplier:          l.HighestMultiplier,
	}
}

// plausible rejects counters that cannot come from a live struct.
func plausible(c readout.Counts) bool {
	if c.TotalNotesHit < 0 || c.TotalNotesMissed < 0 || c.CurrentHitStreak < 0 ||
		c.HighestHitStreak < 0 || c.CurrentMissStreak < 0 {
		return false
	}
	return c.CurrentHitStreak <= c.HighestHitStreak &&
		c.HighestHitStreak <= c.TotalNotesHit &&
		c.CurrentMissStreak <= c.TotalNotesMissed
}
