package process

import (
	"rocksniff/process/memory_map"
)

// MemoryAccess is the narrow surface every platform backend implements.
// Higher layers never touch OS handles directly.
type MemoryAccess interface {
	// GetPID returns the process ID
	GetPID() ProcessID

	// Close closes the process and releases resources
	Close() error

	// ReadMemory reads size bytes at addr. Failures caused by the target
	// exiting or the address being unmapped wrap ErrAccessDenied or
	// ErrAddressNotMapped.
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)

	// WriteMemory writes data to the process memory at the specified address
	WriteMemory(addr ProcessMemoryAddress, data []byte) error

	// Regions enumerates the committed regions of the address space.
	Regions() ([]memory_map.MemoryMapItem, error)

	// ListHandles returns the files the process currently holds open.
	ListHandles() ([]Handle, error)

	// ModuleBase returns the load address of the main executable image.
	ModuleBase() (ProcessMemoryAddress, error)
}
