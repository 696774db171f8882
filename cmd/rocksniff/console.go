package main

import (
	"fmt"
	"os"
	"path/filepath"

	"rocksniff/diag"
	"rocksniff/pod"
	"rocksniff/readout"
	"rocksniff/sniffer"
	"rocksniff/song"
)

// console prints sniffer events for someone watching the terminal.
type console struct {
	sniffer.NopHandler
	log diag.Logger
}

func newConsole(log diag.Logger) *console {
	return &console{log: log}
}

func (c *console) OnSongChanged(d *song.Details) {
	c.log.Infoln("Song:", d.String())
}

func (c *console) OnStateChanged(from, to sniffer.State) {
	c.log.Infoln("State:", from, "->", to)
}

func (c *console) OnSongStarted(s sniffer.Session) {
	c.log.Infoln("Started", s.SongID, "session", s.ID)
}

func (c *console) OnSongEnded(s sniffer.Session) {
	c.log.Infoln("Ended", s.SongID, "session", s.ID)
	if s.Final != nil {
		readoutTable(s.Final).Render(os.Stdout)
	}
}

func (c *console) OnContentFileInstalled(path string, success bool) {
	if success {
		c.log.Infoln("Installed", filepath.Base(path))
	} else {
		c.log.Warn("Could not install", filepath.Base(path))
	}
}

func readoutTable(r *readout.Readout) *pod.Table {
	t := pod.NewTable(
		pod.ColumnSpec{Header: "Field", MinWidth: 20},
		pod.ColumnSpec{Header: "Value", FormatFunc: pod.ColorGreen},
	)
	t.AddKV("song", r.SongID)
	t.AddKV("arrangement", r.ArrangementID)
	t.AddKV("stage", r.GameStage)
	t.AddKV("timer", fmt.Sprintf("%.2f", r.SongTimer))
	t.AddKV("mode", r.Mode)
	if r.NoteData == nil {
		return t
	}

	n := r.NoteData.Notes()
	t.AddKV("notes hit", n.TotalNotesHit)
	t.AddKV("notes missed", n.TotalNotesMissed)
	t.AddKV("highest streak", n.HighestHitStreak)
	t.AddKV("accuracy", fmt.Sprintf("%.2f%%", r.NoteData.Accuracy()))
	if sa, ok := r.NoteData.(readout.ScoreAttackCounters); ok {
		t.AddKV("score", sa.CurrentScore)
		t.AddKV("multiplier", fmt.Sprintf("%dx (best %dx)", sa.CurrentMultiplier, sa.HighestMultiplier))
		t.AddKV("perfect phrases", sa.PerfectPhrases)
	}
	return t
}
