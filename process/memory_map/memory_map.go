package memory_map

import (
	"fmt"
	"sort"
)

// Protection uses the Mach VM_PROT bit layout; other platforms translate
// their native flags into it.
type Protection uint32

const (
	ProtRead    Protection = 0x01
	ProtWrite   Protection = 0x02
	ProtExecute Protection = 0x04
)

// MemoryMapItem represents a memory region in a process's address space
type MemoryMapItem struct {
	Address    uint64     `json:"address"`    // The starting address of the memory region
	Size       uint       `json:"size"`       // The size of the memory region in bytes
	Perms      string     `json:"perms"`      // Permissions (e.g., "r-xp" for read, execute, private)
	Protection Protection `json:"protection"` // Perms as bits
	UserTag    uint32     `json:"user_tag"`   // Allocator tag (Mach user_tag), 0 when the OS has none
	Path       string     `json:"path,omitempty"`
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s, Tag: %d %s", mmItem.Address, mmItem.Size, mmItem.Perms, mmItem.UserTag, mmItem.Path)
}

func (mmItem MemoryMapItem) End() uint64 {
	return mmItem.Address + uint64(mmItem.Size)
}

func (mmItem MemoryMapItem) Contains(addr uint64) bool {
	return addr >= mmItem.Address && addr < mmItem.End()
}

func (mmItem MemoryMapItem) IsReadable() bool {
	return mmItem.Protection&ProtRead != 0
}

func (mmItem MemoryMapItem) IsWritable() bool {
	return mmItem.Protection&ProtWrite != 0
}

// PermsToProtection converts an "rwxp" style string.
func PermsToProtection(perms string) Protection {
	var p Protection
	if len(perms) > 0 && perms[0] == 'r' {
		p |= ProtRead
	}
	if len(perms) > 1 && perms[1] == 'w' {
		p |= ProtWrite
	}
	if len(perms) > 2 && perms[2] == 'x' {
		p |= ProtExecute
	}
	return p
}

// ProtectionToPerms is the inverse of PermsToProtection, private mapping assumed.
func ProtectionToPerms(p Protection) string {
	b := []byte("---p")
	if p&ProtRead != 0 {
		b[0] = 'r'
	}
	if p&ProtWrite != 0 {
		b[1] = 'w'
	}
	if p&ProtExecute != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// Sort orders regions by start address, which the lookups below require.
func Sort(memoryMap []MemoryMapItem) {
	sort.Slice(memoryMap, func(i, j int) bool {
		return memoryMap[i].Address < memoryMap[j].Address
	})
}

// GetMemoryRegionForAddress returns the region containing addr in a sorted map.
func GetMemoryRegionForAddress(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].End() > addr
	})
	if i < len(memoryMap) && memoryMap[i].Address <= addr {
		return &memoryMap[i]
	}

	return nil
}

// IsValidAddress checks if an address is within a mapped region of a sorted map
func IsValidAddress(addr uint64, memoryMap []MemoryMapItem) bool {
	return GetMemoryRegionForAddress(addr, memoryMap) != nil
}

// Filter returns the regions for which keep reports true.
func Filter(memoryMap []MemoryMapItem, keep func(MemoryMapItem) bool) []MemoryMapItem {
	var out []MemoryMapItem
	for _, item := range memoryMap {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
