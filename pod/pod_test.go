package pod

import (
	"errors"
	"strings"
	"testing"

	"rocksniff/process_blob"

	"github.com/google/go-cmp/cmp"
)

type overlay struct {
	_     [8]byte
	Count int32
	Ratio float32
}

type withPointer struct {
	Name string
}

func TestDecodeOverlay(t *testing.T) {
	want := overlay{Count: 12, Ratio: 0.5}
	data := Encode(want)
	if len(data) != 16 {
		t.Fatalf("Encode produced %d bytes, want 16", len(data))
	}
	if off := OffsetOf[overlay]("Count"); off != 8 {
		t.Errorf("OffsetOf(Count) = %d, want 8", off)
	}

	got, err := Decode[overlay](data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Count != 12 || got.Ratio != 0.5 {
		t.Errorf("Decode = %+v", got)
	}

	if _, err := Decode[overlay](data[:10]); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("short Decode err = %v", err)
	}
	if _, err := Decode[withPointer](make([]byte, 64)); !errors.Is(err, ErrNotPOD) {
		t.Errorf("pointer Decode err = %v", err)
	}
}

func TestReadAt(t *testing.T) {
	im := process_blob.NewImage(1, "test")
	im.Map(0x1000, make([]byte, 32), "rw-p")
	im.PutInt32(0x1008, 7)

	got, err := ReadAt[overlay](im, 0x1000)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if got.Count != 7 {
		t.Errorf("Count = %d, want 7", got.Count)
	}
}

func TestTableRender(t *testing.T) {
	tbl := NewTable(ColumnSpec{Header: "Field"}, ColumnSpec{Header: "Value", AlignRight: true})
	tbl.AddKV("timer", 12.5)
	tbl.AddRow("song", "")
	tbl.AddRow(ColorGreen("state"), "InMenus")

	want := strings.Join([]string{
		"Field   Value",
		"----- -------",
		"timer    12.5",
		"song        -",
		ColorGreen("state") + " InMenus",
		"",
	}, "\n")
	if diff := cmp.Diff(want, tbl.String()); diff != "" {
		t.Errorf("Render mismatch (-want +got):\n%s", diff)
	}
}
