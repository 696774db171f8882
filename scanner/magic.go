package scanner

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"rocksniff/diag"
	"rocksniff/process"
	"rocksniff/process/memory_map"
)

// MagicSpec describes an int32 marker the game writes into a heap struct.
type MagicSpec struct {
	Magic int32 `json:"magic"`

	// The eight bytes before the hit, little-endian, must satisfy
	// v&PrecedingMask == PrecedingValue.
	PrecedingMask  uint64 `json:"preceding_mask"`
	PrecedingValue uint64 `json:"preceding_value"`

	// UserTag, when non-zero, must equal the allocator tag of the region
	// holding hit+TagProbeOffset.
	UserTag        uint32 `json:"user_tag"`
	TagProbeOffset int64  `json:"tag_probe_offset"`

	// StructOffset is subtracted from the hit to get the struct address.
	StructOffset int64 `json:"struct_offset"`
}

const (
	magicAlignment = 4
	magicReadChunk = 4 * 1024 * 1024
)

// MagicScanner looks for a MagicSpec across committed writable regions.
type MagicScanner struct {
	mem    process.MemoryAccess
	diag   *diag.Diagnostics
	MaxDOP int
}

func NewMagicScanner(mem process.MemoryAccess, d *diag.Diagnostics) *MagicScanner {
	return &MagicScanner{mem: mem, diag: d, MaxDOP: runtime.NumCPU()}
}

// Scan returns the validated hit that comes first in address order. Regions
// are scanned concurrently; once a region yields a hit, regions after it are
// abandoned.
func (s *MagicScanner) Scan(ctx context.Context, spec MagicSpec) (Match, error) {
	regions, err := s.mem.Regions()
	if err != nil {
		return Match{}, fmt.Errorf("failed to read regions: %w", err)
	}
	memory_map.Sort(regions)

	candidates := memory_map.Filter(regions, func(r memory_map.MemoryMapItem) bool {
		return r.IsReadable() && r.IsWritable()
	})
	s.diag.Debug(diag.MagicScan, "scanner", "Magic scan over", len(candidates), "writable regions for", fmt.Sprintf("%#x", uint32(spec.Magic)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	maxdop := s.MaxDOP
	if maxdop < 1 {
		maxdop = 1
	}
	sem := make(chan struct{}, maxdop)
	var wg sync.WaitGroup

	var best atomic.Int64
	best.Store(math.MaxInt64)
	hits := make([]process.ProcessMemoryAddress, len(candidates))

	for i, region := range candidates {
		if ctx.Err() != nil || int64(i) > best.Load() {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, region memory_map.MemoryMapItem) {
			defer func() {
				<-sem
				wg.Done()
			}()

			abandoned := func() bool {
				return ctx.Err() != nil || int64(i) > best.Load()
			}
			hit, ok := s.scanRegion(region, spec, regions, abandoned)
			if !ok {
				return
			}
			hits[i] = hit
			for {
				cur := best.Load()
				if int64(i) >= cur || best.CompareAndSwap(cur, int64(i)) {
					break
				}
			}
		}(i, region)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil && best.Load() == math.MaxInt64 {
		return Match{}, err
	}
	idx := best.Load()
	if idx == math.MaxInt64 {
		return Match{}, ErrNotFound
	}

	m := Match{Address: hits[idx].Add(-spec.StructOffset)}
	s.diag.Debug(diag.MagicScan, "scanner", "Magic hit at", hits[idx].ToString(), "struct", m.Address.ToString())
	return m, nil
}

func (s *MagicScanner) scanRegion(region memory_map.MemoryMapItem, spec MagicSpec, all []memory_map.MemoryMapItem, abandoned func() bool) (process.ProcessMemoryAddress, bool) {
	var want [4]byte
	binary.LittleEndian.PutUint32(want[:], uint32(spec.Magic))

	for base := region.Address; base < region.End(); base += magicReadChunk {
		if abandoned() {
			return 0, false
		}
		size := min(uint64(magicReadChunk), region.End()-base)
		data, err := s.mem.ReadMemory(process.ProcessMemoryAddress(base), process.ProcessMemorySize(size))
		if err != nil && len(data) == 0 {
			s.diag.Debug(diag.MagicScan, "scanner", "Failed to read region at", fmt.Sprintf("%x", base), err)
			return 0, false
		}

		for off := 0; off+4 <= len(data); off += magicAlignment {
			if data[off] != want[0] || data[off+1] != want[1] || data[off+2] != want[2] || data[off+3] != want[3] {
				continue
			}
			hit := process.ProcessMemoryAddress(base + uint64(off))
			if s.validate(hit, data, off, spec, all) {
				return hit, true
			}
		}
	}
	return 0, false
}

func (s *MagicScanner) validate(hit process.ProcessMemoryAddress, data []byte, off int, spec MagicSpec, regions []memory_map.MemoryMapItem) bool {
	var preceding uint64
	if off >= 8 {
		preceding = binary.LittleEndian.Uint64(data[off-8 : off])
	} else {
		v, err := process.ReadUINT64(s.mem, hit.Add(-8))
		if err != nil {
			return false
		}
		preceding = v
	}
	if preceding&spec.PrecedingMask != spec.PrecedingValue {
		return false
	}

	if spec.UserTag != 0 {
		probe := hit.Add(spec.TagProbeOffset)
		r := memory_map.GetMemoryRegionForAddress(uint64(probe), regions)
		if r == nil || r.UserTag != spec.UserTag {
			return false
		}
	}
	return true
}
