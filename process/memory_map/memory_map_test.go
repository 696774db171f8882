package memory_map

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleMaps = `00400000-0040b000 r-xp 00000000 08:02 1234 /opt/game/Rocksmith2014.exe
0060a000-0060b000 rw-p 0000a000 08:02 1234 /opt/game/Rocksmith2014.exe
garbage line
7ffd0000-7ffd1000 rw-p 00000000 00:00 0
00100000-00200000 ---p 00000000 00:00 0 [heap area]
`

func TestParseMaps(t *testing.T) {
	got, err := ParseMaps(strings.NewReader(sampleMaps))
	if err != nil {
		t.Fatalf("ParseMaps: %v", err)
	}

	want := []MemoryMapItem{
		{Address: 0x100000, Size: 0x100000, Perms: "---p", Protection: 0, Path: "[heap area]"},
		{Address: 0x400000, Size: 0xb000, Perms: "r-xp", Protection: ProtRead | ProtExecute, Path: "/opt/game/Rocksmith2014.exe"},
		{Address: 0x60a000, Size: 0x1000, Perms: "rw-p", Protection: ProtRead | ProtWrite, Path: "/opt/game/Rocksmith2014.exe"},
		{Address: 0x7ffd0000, Size: 0x1000, Perms: "rw-p", Protection: ProtRead | ProtWrite},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseMaps mismatch (-want +got):\n%s", diff)
	}
}

func TestGetMemoryRegionForAddress(t *testing.T) {
	mm := []MemoryMapItem{
		{Address: 0x1000, Size: 0x1000},
		{Address: 0x4000, Size: 0x2000},
	}

	tests := []struct {
		name string
		addr uint64
		want uint64 // region start, 0 when unmapped
	}{
		{"first byte", 0x1000, 0x1000},
		{"last byte", 0x1fff, 0x1000},
		{"gap", 0x2000, 0},
		{"second region", 0x5fff, 0x4000},
		{"past end", 0x6000, 0},
		{"below", 0x10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := GetMemoryRegionForAddress(tt.addr, mm)
			var got uint64
			if r != nil {
				got = r.Address
			}
			if got != tt.want {
				t.Errorf("region for %#x = %#x, want %#x", tt.addr, got, tt.want)
			}
		})
	}
}

func TestProtectionRoundTrip(t *testing.T) {
	for _, perms := range []string{"---p", "r--p", "rw-p", "r-xp", "rwxp"} {
		if got := ProtectionToPerms(PermsToProtection(perms)); got != perms {
			t.Errorf("round trip of %q = %q", perms, got)
		}
	}
}
