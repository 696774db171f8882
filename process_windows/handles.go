//go:build windows

package process_windows

import (
	"fmt"
	"unsafe"

	"rocksniff/process"

	"golang.org/x/sys/windows"
)

const (
	systemHandleInformation = 16

	// Named-pipe handles opened with this mask block GetFinalPathNameByHandle
	// forever.
	hangingGrantedAccess = 0x0012019f

	initialHandleBuffer = 1 << 20
	maxHandleBuffer     = 1 << 28
)

// systemHandleEntry mirrors SYSTEM_HANDLE_TABLE_ENTRY_INFO.
type systemHandleEntry struct {
	UniqueProcessID       uint16
	CreatorBackTraceIndex uint16
	ObjectTypeIndex       uint8
	HandleAttributes      uint8
	HandleValue           uint16
	Object                uintptr
	GrantedAccess         uint32
}

// systemHandleTable mirrors SYSTEM_HANDLE_INFORMATION with a one-entry
// array; the real entry count is NumberOfHandles.
type systemHandleTable struct {
	NumberOfHandles uint32
	Handles         [1]systemHandleEntry
}

// ListHandles queries the system handle table, keeps entries owned by the
// target, duplicates them into this process and resolves disk-file paths.
func (p *WindowsProcess) ListHandles() ([]process.Handle, error) {
	target, err := p.openHandle()
	if err != nil {
		return nil, err
	}
	pid := uint16(p.GetPID())

	table, err := querySystemHandles()
	if err != nil {
		return nil, err
	}

	hdr := (*systemHandleTable)(unsafe.Pointer(&table[0]))
	entries := unsafe.Slice(&hdr.Handles[0], hdr.NumberOfHandles)

	self := windows.CurrentProcess()
	var handles []process.Handle
	for _, e := range entries {
		// UniqueProcessId is truncated to 16 bits by this info class.
		if e.UniqueProcessID != pid {
			continue
		}
		if e.GrantedAccess == hangingGrantedAccess {
			continue
		}

		var dup windows.Handle
		err := windows.DuplicateHandle(target, windows.Handle(e.HandleValue), self, &dup, 0, false, windows.DUPLICATE_SAME_ACCESS)
		if err != nil {
			continue
		}

		h := process.Handle{Value: uint64(e.HandleValue), Type: "other"}
		if ft, _ := windows.GetFileType(dup); ft == windows.FILE_TYPE_DISK {
			if path, err := finalPath(dup); err == nil {
				h.Type = "file"
				h.Path = path
			}
		}
		windows.CloseHandle(dup)

		handles = append(handles, h)
	}

	p.log.Debugln("Listed", len(handles), "handles of", len(entries), "system handles")
	return handles, nil
}

// querySystemHandles grows the buffer until NtQuerySystemInformation stops
// reporting STATUS_INFO_LENGTH_MISMATCH.
func querySystemHandles() ([]byte, error) {
	size := uint32(initialHandleBuffer)
	for size <= maxHandleBuffer {
		buf := make([]byte, size)
		var needed uint32
		status := windows.NtQuerySystemInformation(systemHandleInformation, unsafe.Pointer(&buf[0]), size, &needed)
		if status == nil {
			return buf, nil
		}
		if status != windows.STATUS_INFO_LENGTH_MISMATCH {
			return nil, fmt.Errorf("NtQuerySystemInformation: %v: %w", status, process.ErrAccessDenied)
		}
		if needed > size {
			size = needed + 64*1024
		} else {
			size *= 2
		}
	}
	return nil, fmt.Errorf("system handle table exceeds %d bytes", maxHandleBuffer)
}

// fileNameNormalized is FILE_NAME_NORMALIZED, which x/sys/windows does not
// export.
const fileNameNormalized = 0x0

func finalPath(h windows.Handle) (string, error) {
	buf := make([]uint16, windows.MAX_LONG_PATH)
	n, err := windows.GetFinalPathNameByHandle(h, &buf[0], uint32(len(buf)), fileNameNormalized)
	if err != nil {
		return "", err
	}
	if n > uint32(len(buf)) {
		return "", fmt.Errorf("path longer than %d characters", len(buf))
	}
	path := windows.UTF16ToString(buf[:n])
	// Strip the \\?\ prefix GetFinalPathNameByHandle adds.
	if len(path) > 4 && path[:4] == `\\?\` {
		path = path[4:]
	}
	return path, nil
}
