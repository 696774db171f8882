package process

import (
	"fmt"
)

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

// NullAddress is what resolvers hand back when a chain could not be followed.
const NullAddress ProcessMemoryAddress = 0

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

func (pma ProcessMemoryAddress) IsNull() bool {
	return pma == NullAddress
}

// Add offsets the address by a signed byte delta.
func (pma ProcessMemoryAddress) Add(delta int64) ProcessMemoryAddress {
	return ProcessMemoryAddress(int64(pma) + delta)
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

// AOB (Array of Bytes) represents a pattern to search for in memory
type AOB struct {
	Pattern []byte // The byte pattern to search for
	Mask    []byte // Optional mask where 0xFF means exact match and 0x00 means wildcard
}

// IsValid checks if the AOB pattern is valid
func (aob AOB) IsValid() bool {
	return len(aob.Pattern) > 0 && (len(aob.Mask) == 0 || len(aob.Pattern) == len(aob.Mask))
}

func NewAOB(pattern, mask []byte) (AOB, error) {
	if len(pattern) != len(mask) {
		return AOB{}, fmt.Errorf("pattern and mask must be of the same length")
	}
	return AOB{Pattern: pattern, Mask: mask}, nil
}

// Match reports whether data starts with the pattern under the mask.
func (aob AOB) Match(data []byte) bool {
	if len(data) < len(aob.Pattern) {
		return false
	}
	for j, want := range aob.Pattern {
		m := byte(0xFF)
		if len(aob.Mask) > 0 {
			m = aob.Mask[j]
		}
		if m == 0 {
			continue
		}
		if data[j]&m != want&m {
			return false
		}
	}
	return true
}
