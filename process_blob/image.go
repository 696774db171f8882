// Package process_blob holds process images that live in memory or on disk
// instead of in a running game: dumps for offline replay and hand-built
// layouts for tests.
package process_blob

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"rocksniff/process"
	"rocksniff/process/memory_map"
)

// Image implements process.MemoryAccess over a set of byte slices keyed by
// region start. Regions without data are listed but unreadable.
type Image struct {
	PID  process.ProcessID
	Name string

	mu      sync.RWMutex
	base    process.ProcessMemoryAddress
	regions []memory_map.MemoryMapItem
	blobs   map[uint64][]byte
	handles []process.Handle
	closed  bool
}

var _ process.MemoryAccess = (*Image)(nil)

func NewImage(pid process.ProcessID, name string) *Image {
	return &Image{
		PID:   pid,
		Name:  name,
		blobs: make(map[uint64][]byte),
	}
}

// Map adds a region backed by data. perms follows the "rwxp" form.
func (im *Image) Map(addr uint64, data []byte, perms string) {
	im.AddRegion(memory_map.MemoryMapItem{
		Address:    addr,
		Size:       uint(len(data)),
		Perms:      perms,
		Protection: memory_map.PermsToProtection(perms),
	}, data)
}

// AddRegion adds item with its backing bytes. data may be nil for a region
// that was listed but not captured.
func (im *Image) AddRegion(item memory_map.MemoryMapItem, data []byte) {
	im.mu.Lock()
	defer im.mu.Unlock()

	if item.Protection == 0 && item.Perms != "" {
		item.Protection = memory_map.PermsToProtection(item.Perms)
	}
	im.regions = append(im.regions, item)
	memory_map.Sort(im.regions)
	if data != nil {
		im.blobs[item.Address] = data
	}
}

func (im *Image) SetModuleBase(addr process.ProcessMemoryAddress) {
	im.mu.Lock()
	im.base = addr
	im.mu.Unlock()
}

func (im *Image) SetHandles(handles []process.Handle) {
	im.mu.Lock()
	im.handles = append([]process.Handle(nil), handles...)
	im.mu.Unlock()
}

func (im *Image) GetPID() process.ProcessID {
	return im.PID
}

func (im *Image) Close() error {
	im.mu.Lock()
	im.closed = true
	im.mu.Unlock()
	return nil
}

// ReadMemory copies size bytes at addr. A read may cross into the next region
// only when that region starts exactly where the previous one ends.
func (im *Image) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	if im.closed {
		return nil, process.ErrProcessNotOpen
	}
	out := make([]byte, 0, size)
	err := im.walk(uint64(addr), uint64(size), func(chunk []byte) {
		out = append(out, chunk...)
	})
	if err != nil {
		if len(out) > 0 {
			return out, fmt.Errorf("read %d of %d bytes at %s: %w", len(out), size, addr.ToString(), process.ErrPartialRead)
		}
		return nil, err
	}
	return out, nil
}

// WriteMemory honours region protection the way the live backends do.
func (im *Image) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	im.mu.Lock()
	defer im.mu.Unlock()

	if im.closed {
		return process.ErrProcessNotOpen
	}
	region := memory_map.GetMemoryRegionForAddress(uint64(addr), im.regions)
	if region == nil {
		return fmt.Errorf("write at %s: %w", addr.ToString(), process.ErrAddressNotMapped)
	}
	if !region.IsWritable() {
		return fmt.Errorf("write at %s into %s region: %w", addr.ToString(), region.Perms, process.ErrAccessDenied)
	}
	return im.put(uint64(addr), data)
}

// Put writes data regardless of protection. Test layouts use it to seed
// read-only regions.
func (im *Image) Put(addr uint64, data []byte) error {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.put(addr, data)
}

func (im *Image) PutInt32(addr uint64, v int32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return im.Put(addr, b[:])
}

func (im *Image) PutUint32(addr uint64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return im.Put(addr, b[:])
}

func (im *Image) PutUint64(addr uint64, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return im.Put(addr, b[:])
}

func (im *Image) PutFloat32(addr uint64, v float32) error {
	return im.PutUint32(addr, math.Float32bits(v))
}

// PutString writes s followed by a NUL.
func (im *Image) PutString(addr uint64, s string) error {
	return im.Put(addr, append([]byte(s), 0))
}

func (im *Image) put(addr uint64, data []byte) error {
	off := 0
	return im.walk(addr, uint64(len(data)), func(chunk []byte) {
		off += copy(chunk, data[off:])
	})
}

func (im *Image) Regions() ([]memory_map.MemoryMapItem, error) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	if im.closed {
		return nil, process.ErrProcessNotOpen
	}
	out := make([]memory_map.MemoryMapItem, len(im.regions))
	copy(out, im.regions)
	return out, nil
}

func (im *Image) ListHandles() ([]process.Handle, error) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return append([]process.Handle(nil), im.handles...), nil
}

func (im *Image) ModuleBase() (process.ProcessMemoryAddress, error) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	if im.base == 0 {
		return 0, fmt.Errorf("image %q has no module base: %w", im.Name, process.ErrAddressNotMapped)
	}
	return im.base, nil
}

// Bytes returns the captured data of the region starting at addr.
func (im *Image) Bytes(addr uint64) ([]byte, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	data, ok := im.blobs[addr]
	return data, ok
}

// walk hands visit the backing slices covering [addr, addr+size).
func (im *Image) walk(addr, size uint64, visit func([]byte)) error {
	for size > 0 {
		region := memory_map.GetMemoryRegionForAddress(addr, im.regions)
		if region == nil {
			return fmt.Errorf("0x%X: %w", addr, process.ErrAddressNotMapped)
		}
		data, ok := im.blobs[region.Address]
		if !ok {
			return fmt.Errorf("region 0x%X not captured: %w", region.Address, process.ErrAddressNotMapped)
		}

		off := addr - region.Address
		if off >= uint64(len(data)) {
			return fmt.Errorf("0x%X past captured data: %w", addr, process.ErrAddressNotMapped)
		}
		n := uint64(len(data)) - off
		if n > size {
			n = size
		}
		visit(data[off : off+n])
		addr += n
		size -= n
	}
	return nil
}
