//go:build windows

package process_windows

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/sys/windows"
)

func TestFinalPathOfOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs.psarc")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got, err := finalPath(windows.Handle(f.Fd()))
	if err != nil {
		t.Fatalf("finalPath: %v", err)
	}
	if !strings.EqualFold(filepath.Base(got), "songs.psarc") {
		t.Errorf("finalPath = %q, want a path ending in songs.psarc", got)
	}
}
