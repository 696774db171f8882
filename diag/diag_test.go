package diag

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	got, ok := Parse("cache, state_machine,,")
	if !ok {
		t.Fatal("Parse rejected known toggles")
	}
	if diff := cmp.Diff(map[Toggle]bool{Cache: true, StateMachine: true}, got); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}

	all, ok := Parse("all")
	if !ok || len(all) != len(All) {
		t.Errorf("Parse(all) = %v, %v", all, ok)
	}

	if _, ok := Parse("cache,bogus"); ok {
		t.Error("Parse accepted an unknown toggle")
	}
}

func TestDebugIsGated(t *testing.T) {
	rec := &Recorder{}
	d := NewRecording(rec, map[Toggle]bool{Cache: true})

	d.Debug(Cache, "cache", "hit", 1)
	d.Debug(HIRCScan, "scanner", "scan")

	if diff := cmp.Diff([]string{"DEBUG hit 1"}, rec.Lines()); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}

	d.Set(HIRCScan, true)
	d.Debug(HIRCScan, "scanner", "scan")
	if !rec.Contains("scan") {
		t.Error("enabled toggle did not log")
	}
	if diff := cmp.Diff([]Toggle{Cache, HIRCScan}, d.EnabledList()); diff != "" {
		t.Errorf("EnabledList mismatch (-want +got):\n%s", diff)
	}
}

func TestNilDiagnostics(t *testing.T) {
	var d *Diagnostics
	if d.Enabled(Cache) {
		t.Error("nil Diagnostics reported a toggle on")
	}
	d.Debug(Cache, "cache", "ignored")
}
