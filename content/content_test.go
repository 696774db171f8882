package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var fastWait = WaitPolicy{ExistTries: 3, ExistDelay: time.Millisecond, OpenTries: 3, OpenDelay: time.Millisecond}

func TestMD5Hasher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs.psarc")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	h := &MD5Hasher{Wait: fastWait}
	got, err := h.Hash(context.Background(), path)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if want := "XUFAKrxLKna5cZ2REBfFkg=="; got != want {
		t.Errorf("Hash = %q, want %q", got, want)
	}
}

func TestHasherGivesUpOnMissingFile(t *testing.T) {
	h := &MD5Hasher{Wait: fastWait}
	_, err := h.Hash(context.Background(), filepath.Join(t.TempDir(), "missing.psarc"))
	if !errors.Is(err, ErrFileUnavailable) {
		t.Errorf("Hash err = %v, want ErrFileUnavailable", err)
	}
}

func TestWaitForFileSeesLateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "late.psarc")
	go func() {
		time.Sleep(5 * time.Millisecond)
		os.WriteFile(path, []byte("x"), 0644)
	}()

	f, err := WaitForFile(context.Background(), path, WaitPolicy{ExistTries: 200, ExistDelay: time.Millisecond, OpenTries: 5, OpenDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("WaitForFile: %v", err)
	}
	f.Close()
}

func TestWaitForFileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WaitForFile(ctx, filepath.Join(t.TempDir(), "never"), WaitPolicy{ExistTries: 10, ExistDelay: time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestManifestParse(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "abc_p.psarc")
	os.WriteFile(archive, []byte("PSAR\x00\x01"), 0644)

	t.Run("binary archive without sidecar", func(t *testing.T) {
		got, err := Manifest{}.Parse(archive, "h")
		if err != nil || got != nil {
			t.Errorf("Parse = %v, %v; want nil, nil", got, err)
		}
	})

	t.Run("sidecar", func(t *testing.T) {
		os.WriteFile(archive+SidecarSuffix, []byte(`{"songs":[
			{"songID":"ABC123","songName":"Song","artistName":"Band","songLength":180,"albumYear":2001},
			{"songID":""}
		]}`), 0644)
		got, err := Manifest{}.Parse(archive, "hash1")
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		d, ok := got["ABC123"]
		if len(got) != 1 || !ok || d.FileHash != "hash1" || d.SongLength != 180 || !d.IsValid() {
			t.Errorf("Parse = %+v", got)
		}
	})

	t.Run("broken sidecar", func(t *testing.T) {
		broken := filepath.Join(dir, "broken_p.psarc")
		os.WriteFile(broken+SidecarSuffix, []byte(`{"songs":[`), 0644)
		got, err := Manifest{}.Parse(broken, "h")
		if err == nil || got != nil {
			t.Errorf("Parse = %v, %v; want an error", got, err)
		}
	})
}
