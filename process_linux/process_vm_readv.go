//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"unsafe"

	"rocksniff/process"

	"golang.org/x/sys/unix"
)

// process_vm_readv uses the process_vm_readv syscall to read memory from another process
func process_vm_readv(
	pid process.ProcessID,
	remoteAddr process.ProcessMemoryAddress,
	bytesToRead process.ProcessMemorySize,
) ([]byte, error) {
	localBuf := make([]byte, bytesToRead)

	localIov := unix.Iovec{
		Base: &localBuf[0],
	}
	localIov.SetLen(int(bytesToRead))

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  int(bytesToRead),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags (reserved for future use)
	)

	if errno != 0 {
		return nil, classifyErrno("process_vm_readv", remoteAddr, errno)
	}

	if int(n) != int(bytesToRead) {
		return localBuf[:n], fmt.Errorf("process_vm_readv: %d of %d bytes at %s: %w", n, bytesToRead, remoteAddr.ToString(), process.ErrPartialRead)
	}

	return localBuf, nil
}

// classifyErrno maps syscall failures onto the transient sentinels.
func classifyErrno(op string, addr process.ProcessMemoryAddress, errno unix.Errno) error {
	switch {
	case errors.Is(errno, unix.EFAULT), errors.Is(errno, unix.EINVAL):
		return fmt.Errorf("%s at %s: %w (%v)", op, addr.ToString(), process.ErrAddressNotMapped, errno)
	case errors.Is(errno, unix.EPERM), errors.Is(errno, unix.ESRCH), errors.Is(errno, unix.EACCES):
		return fmt.Errorf("%s at %s: %w (%v)", op, addr.ToString(), process.ErrAccessDenied, errno)
	}
	return fmt.Errorf("%s failed: %s (errno: %d)", op, errno.Error(), errno)
}

// ReadMemory reads memory from the process at the specified address
func (p *LinuxProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	pid, err := p.currentPID()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}
	if addr == process.NullAddress {
		return nil, fmt.Errorf("read at null: %w", process.ErrAddressNotMapped)
	}

	return process_vm_readv(pid, addr, size)
}
