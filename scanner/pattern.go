package scanner

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"rocksniff/process"
	"rocksniff/process/memory_map"
)

// DefaultChunkSize is how much memory one pattern-scan read covers.
const DefaultChunkSize = 32 * 1024

// Span is a half-open address range.
type Span struct {
	Start, End uint64
}

// ReadableSpans intersects [start, end) with the readable regions and merges
// regions that touch, so a chunk may cross their boundary.
func ReadableSpans(regions []memory_map.MemoryMapItem, start, end uint64) []Span {
	var spans []Span
	for _, r := range regions {
		if !r.IsReadable() || r.End() <= start || r.Address >= end {
			continue
		}
		s := Span{Start: max(r.Address, start), End: min(r.End(), end)}
		if n := len(spans); n > 0 && spans[n-1].End == s.Start {
			spans[n-1].End = s.End
			continue
		}
		spans = append(spans, s)
	}
	return spans
}

// ScanPattern reads [start, end) chunk by chunk and returns every match in
// address order. Consecutive chunks overlap by len(pattern)-1 bytes, so a
// match lying across a chunk boundary is reported once.
func ScanPattern(ctx context.Context, mem process.MemoryAccess, aob process.AOB, start, end uint64, chunkSize int) ([]process.ProcessMemoryAddress, error) {
	if !aob.IsValid() {
		return nil, fmt.Errorf("%w: empty pattern or mask length mismatch", ErrInvalidPattern)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	overlap := len(aob.Pattern) - 1
	if chunkSize <= overlap {
		return nil, fmt.Errorf("%w: chunk size %d not larger than pattern", ErrInvalidPattern, chunkSize)
	}

	regions, err := mem.Regions()
	if err != nil {
		return nil, fmt.Errorf("failed to read regions: %w", err)
	}
	memory_map.Sort(regions)

	var results []process.ProcessMemoryAddress
	for _, span := range ReadableSpans(regions, start, end) {
		for addr := span.Start; addr < span.End; addr += uint64(chunkSize - overlap) {
			if err := ctx.Err(); err != nil {
				return results, err
			}

			size := min(uint64(chunkSize), span.End-addr)
			data, err := mem.ReadMemory(process.ProcessMemoryAddress(addr), process.ProcessMemorySize(size))
			if err != nil && len(data) == 0 {
				continue
			}
			for _, off := range findPatternMatches(data, aob) {
				results = append(results, process.ProcessMemoryAddress(addr+uint64(off)))
			}

			if addr+size >= span.End {
				break
			}
		}
	}
	return results, nil
}

// findPatternMatches returns every offset in data where aob matches.
func findPatternMatches(data []byte, aob process.AOB) []int {
	var matches []int
	first := aob.Pattern[0]
	exactFirst := len(aob.Mask) == 0 || aob.Mask[0] == 0xFF
	for i := 0; i <= len(data)-len(aob.Pattern); i++ {
		if exactFirst && data[i] != first {
			continue
		}
		if aob.Match(data[i:]) {
			matches = append(matches, i)
		}
	}
	return matches
}

// ParseAOB parses "48 49 ?? 43" or "48,49,??,43". Typed tokens expand to
// their little-endian bytes: i32:-1, u32:10, f32:1.5, str:Song_.
func ParseAOB(s string) (process.AOB, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})

	var aob process.AOB
	add := func(b ...byte) {
		for _, v := range b {
			aob.Pattern = append(aob.Pattern, v)
			aob.Mask = append(aob.Mask, 0xFF)
		}
	}

	for _, part := range parts {
		if part == "??" || part == "?" {
			aob.Pattern = append(aob.Pattern, 0)
			aob.Mask = append(aob.Mask, 0)
			continue
		}

		if kind, val, ok := strings.Cut(part, ":"); ok {
			b, err := expandTyped(kind, val)
			if err != nil {
				return process.AOB{}, fmt.Errorf("%w: %s: %v", ErrInvalidPattern, part, err)
			}
			add(b...)
			continue
		}

		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return process.AOB{}, fmt.Errorf("%w: invalid hex byte %q", ErrInvalidPattern, part)
		}
		add(byte(v))
	}

	if !aob.IsValid() {
		return process.AOB{}, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	return aob, nil
}

func expandTyped(kind, val string) ([]byte, error) {
	switch kind {
	case "i32":
		v, err := strconv.ParseInt(val, 0, 32)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint32(nil, uint32(int32(v))), nil
	case "u32":
		v, err := strconv.ParseUint(val, 0, 32)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint32(nil, uint32(v)), nil
	case "f32":
		v, err := strconv.ParseFloat(val, 32)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(v))), nil
	case "str":
		if val == "" {
			return nil, fmt.Errorf("empty string")
		}
		return []byte(val), nil
	}
	return nil, fmt.Errorf("unknown type %q", kind)
}

// FormatAOB renders aob the way ParseAOB reads it.
func FormatAOB(aob process.AOB) string {
	var sb strings.Builder
	for i, b := range aob.Pattern {
		if i > 0 {
			sb.WriteString(" ")
		}
		if len(aob.Mask) > 0 && aob.Mask[i] == 0 {
			sb.WriteString("??")
			continue
		}
		sb.WriteString(hex.EncodeToString([]byte{b}))
	}
	return sb.String()
}
