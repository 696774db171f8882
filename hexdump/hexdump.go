// Package hexdump renders memory for the probe tools, marking pattern hits
// and 32-bit values that point into mapped regions.
package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"rocksniff/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// Mark highlights Len bytes starting at Off within the dumped data.
type Mark struct {
	Off, Len int
}

type Options struct {
	// Base is the address of data[0].
	Base         uint64
	BytesPerLine int
	Marks        []Mark

	// Regions, when set, annotate every aligned uint32 that lands inside one
	// of them.
	Regions []memory_map.MemoryMapItem

	Color bool
}

func DefaultOptions() Options {
	return Options{BytesPerLine: 16, Color: true}
}

func Dump(data []byte, opts Options) string {
	var buf bytes.Buffer
	Write(&buf, data, opts)
	return buf.String()
}

// Write renders lines of the form
//
//	00410100  48 49 52 43 0c 00 00 00 | 00 00 00 00 00 00 00 00 | HIRC.... ........ | ->0x410120
func Write(w io.Writer, data []byte, opts Options) {
	if opts.BytesPerLine <= 0 {
		opts.BytesPerLine = 16
	}
	for off := 0; off < len(data); off += opts.BytesPerLine {
		end := min(off+opts.BytesPerLine, len(data))
		writeLine(w, data, off, end, opts)
	}
}

func writeLine(w io.Writer, data []byte, off, end int, opts Options) {
	half := off + opts.BytesPerLine/2
	fmt.Fprintf(w, "%08x  ", opts.Base+uint64(off))

	for i := off; i < off+opts.BytesPerLine; i++ {
		if i == half {
			io.WriteString(w, "| ")
		}
		if i >= end {
			io.WriteString(w, "   ")
			continue
		}
		io.WriteString(w, opts.paint(i, fmt.Sprintf("%02x", data[i]))+" ")
	}

	io.WriteString(w, "| ")
	for i := off; i < end; i++ {
		if i == half {
			io.WriteString(w, " ")
		}
		c := "."
		if data[i] >= 0x20 && data[i] < 0x7f {
			c = string(rune(data[i]))
		}
		io.WriteString(w, opts.paint(i, c))
	}

	if ptrs := opts.pointers(data[off:end], opts.Base+uint64(off)); len(ptrs) > 0 {
		io.WriteString(w, " | "+strings.Join(ptrs, " "))
	}
	io.WriteString(w, "\n")
}

func (o Options) marked(i int) bool {
	for _, m := range o.Marks {
		if i >= m.Off && i < m.Off+m.Len {
			return true
		}
	}
	return false
}

func (o Options) paint(i int, s string) string {
	if !o.Color || !o.marked(i) {
		return s
	}
	return coloransi.Color(coloransi.Red, coloransi.ColorOrange, s)
}

func (o Options) pointers(line []byte, addr uint64) []string {
	if len(o.Regions) == 0 {
		return nil
	}
	var out []string
	for i := int((4 - addr%4) % 4); i+4 <= len(line); i += 4 {
		v := uint64(binary.LittleEndian.Uint32(line[i:]))
		if v != 0 && memory_map.GetMemoryRegionForAddress(v, o.Regions) != nil {
			out = append(out, fmt.Sprintf("->%#x", v))
		}
	}
	return out
}
