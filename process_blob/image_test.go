package process_blob

import (
	"context"
	"errors"
	"testing"

	"rocksniff/process"
	"rocksniff/process/memory_map"

	"github.com/google/go-cmp/cmp"
)

func TestImageReadAcrossAdjacentRegions(t *testing.T) {
	im := NewImage(1, "test")
	im.Map(0x1000, []byte{1, 2, 3, 4}, "r--p")
	im.Map(0x1004, []byte{5, 6, 7, 8}, "rw-p")

	got, err := im.ReadMemory(0x1002, 4)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if diff := cmp.Diff([]byte{3, 4, 5, 6}, got); diff != "" {
		t.Errorf("ReadMemory mismatch (-want +got):\n%s", diff)
	}
}

func TestImageReadErrors(t *testing.T) {
	im := NewImage(1, "test")
	im.Map(0x1000, []byte{1, 2, 3, 4}, "r--p")

	if _, err := im.ReadMemory(0x2000, 4); !errors.Is(err, process.ErrAddressNotMapped) {
		t.Errorf("unmapped read err = %v, want ErrAddressNotMapped", err)
	}

	got, err := im.ReadMemory(0x1002, 4)
	if !errors.Is(err, process.ErrPartialRead) {
		t.Errorf("overrun read err = %v, want ErrPartialRead", err)
	}
	if diff := cmp.Diff([]byte{3, 4}, got); diff != "" {
		t.Errorf("partial data mismatch (-want +got):\n%s", diff)
	}

	im.Close()
	if _, err := im.ReadMemory(0x1000, 1); !errors.Is(err, process.ErrProcessNotOpen) {
		t.Errorf("read after close err = %v, want ErrProcessNotOpen", err)
	}
}

func TestImageWriteHonoursProtection(t *testing.T) {
	im := NewImage(1, "test")
	im.Map(0x1000, make([]byte, 8), "r--p")
	im.Map(0x2000, make([]byte, 8), "rw-p")

	if err := im.WriteMemory(0x1000, []byte{1}); !errors.Is(err, process.ErrAccessDenied) {
		t.Errorf("write to read-only err = %v, want ErrAccessDenied", err)
	}
	if err := im.WriteMemory(0x2004, []byte{9}); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}
	v, err := process.ReadUINT8(im, 0x2004)
	if err != nil || v != 9 {
		t.Errorf("ReadUINT8 = %d, %v; want 9, nil", v, err)
	}

	if err := im.PutInt32(0x1000, -2); err != nil {
		t.Fatalf("PutInt32: %v", err)
	}
	n, err := process.ReadINT32(im, 0x1000)
	if err != nil || n != -2 {
		t.Errorf("ReadINT32 = %d, %v; want -2, nil", n, err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	src := NewImage(42, "Rocksmith2014.exe")
	src.Map(0x400000, []byte("MZ\x90\x00header"), "r-xp")
	src.Map(0x10000, []byte{0xaa, 0xbb}, "rw-p")
	src.AddRegion(memory_map.MemoryMapItem{Address: 0x20000, Size: 16, Perms: "---p"}, make([]byte, 16))
	src.SetModuleBase(0x400000)
	src.SetHandles([]process.Handle{{Value: 3, Type: "file", Path: "/games/dlc/a_p.psarc"}})

	dir := t.TempDir()
	stats, err := Save(context.Background(), src, dir, SaveOptions{Name: src.Name})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if stats.Saved != 2 || stats.NotReadable != 1 {
		t.Errorf("stats = %+v, want 2 saved and 1 not readable", stats)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.PID != 42 || loaded.Name != "Rocksmith2014.exe" {
		t.Errorf("metadata = %d %q", loaded.PID, loaded.Name)
	}
	base, err := loaded.ModuleBase()
	if err != nil || base != 0x400000 {
		t.Errorf("ModuleBase = %s, %v", base.ToString(), err)
	}

	got, err := loaded.ReadMemory(0x10000, 2)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if diff := cmp.Diff([]byte{0xaa, 0xbb}, got); diff != "" {
		t.Errorf("blob mismatch (-want +got):\n%s", diff)
	}

	if _, err := loaded.ReadMemory(0x20000, 1); !errors.Is(err, process.ErrAddressNotMapped) {
		t.Errorf("uncaptured region read err = %v, want ErrAddressNotMapped", err)
	}

	wantRegions, _ := src.Regions()
	gotRegions, _ := loaded.Regions()
	if diff := cmp.Diff(wantRegions, gotRegions); diff != "" {
		t.Errorf("regions mismatch (-want +got):\n%s", diff)
	}

	handles, _ := loaded.ListHandles()
	if diff := cmp.Diff([]process.Handle{{Value: 3, Type: "file", Path: "/games/dlc/a_p.psarc"}}, handles); diff != "" {
		t.Errorf("handles mismatch (-want +got):\n%s", diff)
	}
}
