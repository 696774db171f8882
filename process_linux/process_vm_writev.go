//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"rocksniff/process"
	"rocksniff/process/memory_map"

	"golang.org/x/sys/unix"
)

// process_vm_writev uses the process_vm_writev syscall to write memory to another process
func process_vm_writev(
	pid process.ProcessID,
	data []byte,
	remoteAddr process.ProcessMemoryAddress,
) (int, error) {
	localIov := unix.Iovec{
		Base: &data[0],
	}
	localIov.SetLen(len(data))

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(data),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_WRITEV,
		uintptr(pid),
		uintptr(unsafe.Pointer(&localIov)),
		uintptr(1),
		uintptr(unsafe.Pointer(&remoteIov)),
		uintptr(1),
		uintptr(0),
	)

	if errno != 0 {
		return 0, classifyErrno("process_vm_writev", remoteAddr, errno)
	}

	return int(n), nil
}

// WriteMemory writes data to the process memory at the specified address.
// process_vm_writev honours page protections, so the target must be writable.
func (p *LinuxProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	pid, err := p.currentPID()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	p.mu.Lock()
	region := memory_map.GetMemoryRegionForAddress(uint64(addr), p.mm)
	writable := region != nil && region.IsWritable()
	p.mu.Unlock()

	if region == nil {
		return fmt.Errorf("write at %s: %w", addr.ToString(), process.ErrAddressNotMapped)
	}
	if !writable {
		return fmt.Errorf("memory region at %x is not writable: %w", addr, process.ErrAccessDenied)
	}

	// Create a copy of the data to avoid potential modification during the write
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	written, err := process_vm_writev(pid, dataCopy, addr)
	if err != nil {
		return fmt.Errorf("failed to write process memory: %w", err)
	}

	if written != len(data) {
		return fmt.Errorf("only wrote %d of %d bytes: %w", written, len(data), process.ErrPartialRead)
	}

	return nil
}
