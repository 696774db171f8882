//go:build linux

// Package process_linux reads a game running under Wine or Proton through
// process_vm_readv and procfs.
package process_linux

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"rocksniff/process"
	"rocksniff/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// LinuxProcess implements process.MemoryAccess for Linux systems
type LinuxProcess struct {
	pid        process.ProcessID
	moduleName string
	log        *logger.Logger
	mm         []memory_map.MemoryMapItem
	mu         sync.Mutex
}

var _ process.MemoryAccess = (*LinuxProcess)(nil)

// NewWithPID opens pid. moduleName names the main image as it appears in
// /proc/<pid>/maps (for a Wine process that is the .exe, not wine-preloader).
func NewWithPID(pid process.ProcessID, moduleName string) (*LinuxProcess, error) {
	p := &LinuxProcess{
		moduleName: moduleName,
		log:        logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open")),
	}
	if err := p.Open(pid); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *LinuxProcess) Open(pid process.ProcessID) error {
	// Check if process exists
	procPath := fmt.Sprintf("/proc/%d", pid)
	if _, err := os.Stat(procPath); os.IsNotExist(err) {
		return fmt.Errorf("process with PID %d does not exist: %w", pid, process.ErrProcessNotFound)
	}

	p.mu.Lock()
	p.pid = pid
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	p.mu.Unlock()

	if _, err := p.Regions(); err != nil {
		return fmt.Errorf("failed to initialize memory map: %w", err)
	}

	p.log.Infoln("Process opened")

	return nil
}

func (p *LinuxProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pid = 0
	p.mm = nil

	p.log.Infoln("Process closed")
	p.log = logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))

	return nil
}

// GetPID returns the process ID
func (p *LinuxProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *LinuxProcess) currentPID() (process.ProcessID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pid == 0 {
		return 0, process.ErrProcessNotOpen
	}
	return p.pid, nil
}

// Regions re-reads /proc/<pid>/maps; the map is cached for ModuleBase.
func (p *LinuxProcess) Regions() ([]memory_map.MemoryMapItem, error) {
	pid, err := p.currentPID()
	if err != nil {
		return nil, err
	}

	// Read memory map without holding the lock
	mm, err := memory_map.ReadMemoryMap(int(pid))
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("failed to read memory map: %w", process.ErrAccessDenied)
		}
		return nil, fmt.Errorf("failed to read memory map: %w", err)
	}

	p.mu.Lock()
	p.mm = mm
	p.mu.Unlock()

	result := make([]memory_map.MemoryMapItem, len(mm))
	copy(result, mm)
	return result, nil
}

// ModuleBase returns the lowest mapping backed by the module file.
func (p *LinuxProcess) ModuleBase() (process.ProcessMemoryAddress, error) {
	mm, err := p.Regions()
	if err != nil {
		return 0, err
	}

	want := strings.ToLower(p.moduleName)
	for _, item := range mm {
		if item.Path == "" {
			continue
		}
		if strings.ToLower(filepath.Base(item.Path)) == want {
			return process.ProcessMemoryAddress(item.Address), nil
		}
	}
	return 0, fmt.Errorf("module %q not mapped in process %d: %w", p.moduleName, p.GetPID(), process.ErrAddressNotMapped)
}
