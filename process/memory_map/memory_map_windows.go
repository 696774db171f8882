//go:build windows

package memory_map

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// ReadMemoryMap walks the address space of an open process handle with
// VirtualQueryEx and returns the committed regions.
func ReadMemoryMap(handle windows.Handle) ([]MemoryMapItem, error) {
	var memoryMap []MemoryMapItem
	var info windows.MemoryBasicInformation

	var addr uintptr
	for {
		err := windows.VirtualQueryEx(handle, addr, &info, unsafe.Sizeof(info))
		if err != nil {
			// ERROR_INVALID_PARAMETER marks the end of the user address space.
			break
		}
		if info.RegionSize == 0 {
			break
		}

		if info.State == windows.MEM_COMMIT && info.Protect&windows.PAGE_GUARD == 0 && info.Protect&windows.PAGE_NOACCESS == 0 {
			prot := winProtection(info.Protect)
			memoryMap = append(memoryMap, MemoryMapItem{
				Address:    uint64(info.BaseAddress),
				Size:       uint(info.RegionSize),
				Perms:      ProtectionToPerms(prot),
				Protection: prot,
				UserTag:    info.Type, // MEM_PRIVATE / MEM_MAPPED / MEM_IMAGE
			})
		}

		next := info.BaseAddress + info.RegionSize
		if next <= addr {
			break
		}
		addr = next
	}

	Sort(memoryMap)
	return memoryMap, nil
}

func winProtection(protect uint32) Protection {
	switch protect &^ (windows.PAGE_GUARD | windows.PAGE_NOCACHE | windows.PAGE_WRITECOMBINE) {
	case windows.PAGE_READONLY:
		return ProtRead
	case windows.PAGE_READWRITE, windows.PAGE_WRITECOPY:
		return ProtRead | ProtWrite
	case windows.PAGE_EXECUTE:
		return ProtExecute
	case windows.PAGE_EXECUTE_READ:
		return ProtRead | ProtExecute
	case windows.PAGE_EXECUTE_READWRITE, windows.PAGE_EXECUTE_WRITECOPY:
		return ProtRead | ProtWrite | ProtExecute
	}
	return 0
}
