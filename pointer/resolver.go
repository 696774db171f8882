// Package pointer follows 32-bit pointer chains inside the game process.
package pointer

import (
	"fmt"
	"strings"

	"rocksniff/diag"
	"rocksniff/process"
)

// Chain is an entry point relative to the module base plus the offsets to
// walk from it.
type Chain struct {
	Entry   uint64  `json:"entry"`
	Offsets []int64 `json:"offsets"`
}

func (c Chain) IsZero() bool {
	return c.Entry == 0 && len(c.Offsets) == 0
}

func (c Chain) String() string {
	parts := make([]string, len(c.Offsets))
	for i, off := range c.Offsets {
		parts[i] = fmt.Sprintf("%#x", off)
	}
	return fmt.Sprintf("%#x[%s]", c.Entry, strings.Join(parts, " "))
}

// Resolver walks chains against one MemoryAccess. It keeps no state between
// calls.
type Resolver struct {
	mem  process.MemoryAccess
	diag *diag.Diagnostics
}

func NewResolver(mem process.MemoryAccess, d *diag.Diagnostics) *Resolver {
	return &Resolver{mem: mem, diag: d}
}

// Resolve reads a 4-byte little-endian pointer at the current address and
// adds the next offset, once per offset. The last address is not
// dereferenced. A step whose result equals its own offset means the pointer
// read back as zero; the chain is then treated as broken and NullAddress is
// returned, as it is for any read error.
func (r *Resolver) Resolve(base process.ProcessMemoryAddress, offsets []int64) process.ProcessMemoryAddress {
	addr := base
	for i, off := range offsets {
		ptr, err := process.ReadINT32(r.mem, addr)
		if err != nil {
			r.diag.Debug(diag.MemoryReadout, "pointer", "chain step", i, "read at", addr.ToString(), "failed:", err)
			return process.NullAddress
		}

		next := process.ProcessMemoryAddress(uint32(ptr)).Add(off)
		if next == process.ProcessMemoryAddress(off) {
			r.diag.Debug(diag.MemoryReadout, "pointer", "chain step", i, "null pointer at", addr.ToString())
			return process.NullAddress
		}
		addr = next
	}
	return addr
}

// ResolveFrom starts the walk at moduleBase + entry.
func (r *Resolver) ResolveFrom(moduleBase process.ProcessMemoryAddress, entry uint64, offsets []int64) process.ProcessMemoryAddress {
	if moduleBase.IsNull() {
		return process.NullAddress
	}
	return r.Resolve(moduleBase+process.ProcessMemoryAddress(entry), offsets)
}

// ResolveChain is ResolveFrom for a Chain.
func (r *Resolver) ResolveChain(moduleBase process.ProcessMemoryAddress, c Chain) process.ProcessMemoryAddress {
	if c.IsZero() {
		return process.NullAddress
	}
	return r.ResolveFrom(moduleBase, c.Entry, c.Offsets)
}

// Trace returns every intermediate address of a walk. It stops at the first
// failing step; the error says which.
func (r *Resolver) Trace(base process.ProcessMemoryAddress, offsets []int64) ([]process.ProcessMemoryAddress, error) {
	steps := []process.ProcessMemoryAddress{base}
	addr := base
	for i, off := range offsets {
		ptr, err := process.ReadINT32(r.mem, addr)
		if err != nil {
			return steps, fmt.Errorf("step %d: read at %s: %w", i, addr.ToString(), err)
		}
		next := process.ProcessMemoryAddress(uint32(ptr)).Add(off)
		if next == process.ProcessMemoryAddress(off) {
			return steps, fmt.Errorf("step %d: null pointer at %s: %w", i, addr.ToString(), process.ErrAddressNotMapped)
		}
		steps = append(steps, next)
		addr = next
	}
	return steps, nil
}
