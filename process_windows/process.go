//go:build windows

// Package process_windows is the syscall-table backend: kernel32 memory
// access plus the undocumented system handle table for open-file discovery.
package process_windows

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"rocksniff/process"
	"rocksniff/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

const processAccess = windows.PROCESS_VM_READ |
	windows.PROCESS_VM_WRITE |
	windows.PROCESS_VM_OPERATION |
	windows.PROCESS_QUERY_INFORMATION |
	windows.PROCESS_DUP_HANDLE

// WindowsProcess implements process.MemoryAccess for Windows systems
type WindowsProcess struct {
	pid        process.ProcessID
	moduleName string
	handle     windows.Handle
	log        *logger.Logger
	mu         sync.Mutex
}

var _ process.MemoryAccess = (*WindowsProcess)(nil)

// NewWithPID creates a new WindowsProcess instance and opens it with the given PID
func NewWithPID(pid process.ProcessID, moduleName string) (*WindowsProcess, error) {
	p := &WindowsProcess{
		moduleName: moduleName,
		log:        logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open")),
	}
	if err := p.Open(pid); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *WindowsProcess) Open(pid process.ProcessID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	handle, err := windows.OpenProcess(processAccess, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("OpenProcess(%d) failed: %v: %w", pid, err, process.ErrAccessDenied)
	}

	p.pid = pid
	p.handle = handle
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))

	p.log.Infoln("Process opened")
	return nil
}

func (p *WindowsProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != 0 {
		if err := windows.CloseHandle(p.handle); err != nil {
			return fmt.Errorf("CloseHandle failed: %v", err)
		}
		p.handle = 0
	}

	p.pid = 0
	p.log.Infoln("Process closed")
	p.log = logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))

	return nil
}

func (p *WindowsProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *WindowsProcess) openHandle() (windows.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == 0 {
		return 0, process.ErrProcessNotOpen
	}
	return p.handle, nil
}

func (p *WindowsProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	handle, err := p.openHandle()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}

	buffer := make([]byte, size)
	var bytesRead uintptr
	err = windows.ReadProcessMemory(handle, uintptr(addr), &buffer[0], uintptr(size), &bytesRead)
	if err != nil {
		return nil, classifyError("ReadProcessMemory", addr, err)
	}
	if bytesRead != uintptr(size) {
		return buffer[:bytesRead], fmt.Errorf("ReadProcessMemory: %d of %d bytes at %s: %w", bytesRead, size, addr.ToString(), process.ErrPartialRead)
	}

	return buffer, nil
}

func (p *WindowsProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	handle, err := p.openHandle()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var written uintptr
	err = windows.WriteProcessMemory(handle, uintptr(addr), &data[0], uintptr(len(data)), &written)
	if err != nil {
		return classifyError("WriteProcessMemory", addr, err)
	}
	if written != uintptr(len(data)) {
		return fmt.Errorf("only wrote %d of %d bytes: %w", written, len(data), process.ErrPartialRead)
	}
	return nil
}

func (p *WindowsProcess) Regions() ([]memory_map.MemoryMapItem, error) {
	handle, err := p.openHandle()
	if err != nil {
		return nil, err
	}
	return memory_map.ReadMemoryMap(handle)
}

// ModuleBase walks the module snapshot for the main image. The 32-bit flag
// is needed when a 64-bit reader inspects a 32-bit game.
func (p *WindowsProcess) ModuleBase() (process.ProcessMemoryAddress, error) {
	pid := p.GetPID()
	if pid == 0 {
		return 0, process.ErrProcessNotOpen
	}

	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, uint32(pid))
	if err != nil {
		return 0, fmt.Errorf("CreateToolhelp32Snapshot: %v: %w", err, process.ErrAccessDenied)
	}
	defer windows.CloseHandle(snapshot)

	var me32 windows.ModuleEntry32
	me32.Size = uint32(unsafe.Sizeof(me32))
	if err := windows.Module32First(snapshot, &me32); err != nil {
		return 0, fmt.Errorf("Module32First: %w", err)
	}
	for {
		if strings.EqualFold(windows.UTF16ToString(me32.Module[:]), p.moduleName) {
			return process.ProcessMemoryAddress(me32.ModBaseAddr), nil
		}
		if err := windows.Module32Next(snapshot, &me32); err != nil {
			break
		}
	}
	return 0, fmt.Errorf("module %q not found in process %d: %w", p.moduleName, pid, process.ErrAddressNotMapped)
}

func classifyError(op string, addr process.ProcessMemoryAddress, err error) error {
	switch {
	case errors.Is(err, windows.ERROR_PARTIAL_COPY), errors.Is(err, windows.ERROR_NOACCESS), errors.Is(err, windows.ERROR_INVALID_ADDRESS):
		return fmt.Errorf("%s at %s: %w (%v)", op, addr.ToString(), process.ErrAddressNotMapped, err)
	case errors.Is(err, windows.ERROR_ACCESS_DENIED), errors.Is(err, windows.ERROR_INVALID_HANDLE):
		return fmt.Errorf("%s at %s: %w (%v)", op, addr.ToString(), process.ErrAccessDenied, err)
	}
	return fmt.Errorf("%s at %s failed: %w", op, addr.ToString(), err)
}
