//go:build darwin && cgo

// Package process_darwin is the Mach-VM backend. Attaching needs the
// com.apple.security.cs.debugger entitlement or root.
package process_darwin

/*
#include <stdlib.h>
#include <string.h>
#include <mach/mach.h>
#include <mach/mach_vm.h>
#include <libproc.h>
#include <sys/proc_info.h>

static kern_return_t rs_task_for_pid(int pid, mach_port_t *task) {
	return task_for_pid(mach_task_self(), pid, task);
}

static void rs_release(mach_port_t task) {
	mach_port_deallocate(mach_task_self(), task);
}

static kern_return_t rs_read(mach_port_t task, mach_vm_address_t addr, mach_vm_size_t size, void *out, mach_vm_size_t *got) {
	return mach_vm_read_overwrite(task, addr, size, (mach_vm_address_t)out, got);
}

static kern_return_t rs_write(mach_port_t task, mach_vm_address_t addr, void *data, mach_msg_type_number_t size) {
	return mach_vm_write(task, addr, (vm_offset_t)data, size);
}

static kern_return_t rs_region(mach_port_t task, mach_vm_address_t *addr, mach_vm_size_t *size, int *prot) {
	vm_region_basic_info_data_64_t info;
	mach_msg_type_number_t count = VM_REGION_BASIC_INFO_COUNT_64;
	mach_port_t object = MACH_PORT_NULL;
	kern_return_t kr = mach_vm_region(task, addr, size, VM_REGION_BASIC_INFO_64, (vm_region_info_t)&info, &count, &object);
	if (kr == KERN_SUCCESS) {
		*prot = info.protection;
	}
	return kr;
}

static kern_return_t rs_user_tag(mach_port_t task, mach_vm_address_t addr, unsigned int *tag) {
	mach_vm_size_t size = 0;
	natural_t depth = 0;
	vm_region_submap_info_data_64_t info;
	for (;;) {
		mach_msg_type_number_t count = VM_REGION_SUBMAP_INFO_COUNT_64;
		kern_return_t kr = mach_vm_region_recurse(task, &addr, &size, &depth, (vm_region_recurse_info_t)&info, &count);
		if (kr != KERN_SUCCESS) {
			return kr;
		}
		if (!info.is_submap) {
			break;
		}
		depth++;
	}
	*tag = info.user_tag;
	return KERN_SUCCESS;
}

static int rs_list_fds(int pid, void *buf, int size) {
	return proc_pidinfo(pid, PROC_PIDLISTFDS, 0, buf, size);
}

static int rs_fd_path(int pid, int fd, char *out, int outLen) {
	struct vnode_fdinfowithpath vi;
	int n = proc_pidfdinfo(pid, fd, PROC_PIDFDVNODEPATHINFO, &vi, PROC_PIDFDVNODEPATHINFO_SIZE);
	if (n != PROC_PIDFDVNODEPATHINFO_SIZE) {
		return -1;
	}
	strlcpy(out, vi.pvip.vip_path, outLen);
	return 0;
}
*/
import "C"

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"rocksniff/process"
	"rocksniff/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

const (
	mhMagic    = 0xfeedface
	mhMagic64  = 0xfeedfacf
	mhExecute  = 0x2
	pathMaxLen = 1024
)

// DarwinProcess implements process.MemoryAccess through a Mach task port.
type DarwinProcess struct {
	pid  process.ProcessID
	task C.mach_port_t
	log  *logger.Logger
	mu   sync.Mutex
}

var _ process.MemoryAccess = (*DarwinProcess)(nil)

// NewWithPID acquires the task port for pid. This is the only fatal failure
// point of the backend.
func NewWithPID(pid process.ProcessID) (*DarwinProcess, error) {
	var task C.mach_port_t
	if kr := C.rs_task_for_pid(C.int(pid), &task); kr != C.KERN_SUCCESS {
		return nil, fmt.Errorf("task_for_pid(%d) = %d: %w", pid, int(kr), process.ErrAccessDenied)
	}

	p := &DarwinProcess{
		pid:  pid,
		task: task,
		log:  logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid))),
	}
	p.log.Infoln("Task port acquired")
	return p, nil
}

func (p *DarwinProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.task != 0 {
		C.rs_release(p.task)
		p.task = 0
	}
	p.pid = 0
	p.log.Infoln("Process closed")
	return nil
}

func (p *DarwinProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *DarwinProcess) currentTask() (C.mach_port_t, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.task == 0 {
		return 0, process.ErrProcessNotOpen
	}
	return p.task, nil
}

func (p *DarwinProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	task, err := p.currentTask()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, size)
	var got C.mach_vm_size_t
	kr := C.rs_read(task, C.mach_vm_address_t(addr), C.mach_vm_size_t(size), unsafe.Pointer(&buf[0]), &got)
	if kr != C.KERN_SUCCESS {
		return nil, classifyKern("mach_vm_read_overwrite", addr, kr)
	}
	if uint64(got) != uint64(size) {
		return buf[:got], fmt.Errorf("mach_vm_read_overwrite: %d of %d bytes at %s: %w", got, size, addr.ToString(), process.ErrPartialRead)
	}
	return buf, nil
}

func (p *DarwinProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	task, err := p.currentTask()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	kr := C.rs_write(task, C.mach_vm_address_t(addr), unsafe.Pointer(&data[0]), C.mach_msg_type_number_t(len(data)))
	if kr != C.KERN_SUCCESS {
		return classifyKern("mach_vm_write", addr, kr)
	}
	return nil
}

// Regions walks mach_vm_region from address zero and attaches the user tag
// reported by mach_vm_region_recurse.
func (p *DarwinProcess) Regions() ([]memory_map.MemoryMapItem, error) {
	task, err := p.currentTask()
	if err != nil {
		return nil, err
	}

	var regions []memory_map.MemoryMapItem
	var addr C.mach_vm_address_t
	for {
		var size C.mach_vm_size_t
		var prot C.int
		if kr := C.rs_region(task, &addr, &size, &prot); kr != C.KERN_SUCCESS {
			break
		}

		var tag C.uint
		C.rs_user_tag(task, addr, &tag)

		protection := memory_map.Protection(prot) & (memory_map.ProtRead | memory_map.ProtWrite | memory_map.ProtExecute)
		regions = append(regions, memory_map.MemoryMapItem{
			Address:    uint64(addr),
			Size:       uint(size),
			Perms:      memory_map.ProtectionToPerms(protection),
			Protection: protection,
			UserTag:    uint32(tag),
		})
		addr += C.mach_vm_address_t(size)
	}

	if len(regions) == 0 {
		return nil, fmt.Errorf("no regions for task of %d: %w", p.GetPID(), process.ErrAccessDenied)
	}
	return regions, nil
}

// ModuleBase finds the single image whose Mach-O header is MH_EXECUTE.
func (p *DarwinProcess) ModuleBase() (process.ProcessMemoryAddress, error) {
	regions, err := p.Regions()
	if err != nil {
		return 0, err
	}
	for _, r := range regions {
		if !r.IsReadable() {
			continue
		}
		hdr, err := p.ReadMemory(process.ProcessMemoryAddress(r.Address), 16)
		if err != nil {
			continue
		}
		magic := binary.LittleEndian.Uint32(hdr[0:4])
		filetype := binary.LittleEndian.Uint32(hdr[12:16])
		if (magic == mhMagic || magic == mhMagic64) && filetype == mhExecute {
			return process.ProcessMemoryAddress(r.Address), nil
		}
	}
	return 0, fmt.Errorf("no MH_EXECUTE image in process %d: %w", p.GetPID(), process.ErrAddressNotMapped)
}

// ListHandles reports the vnode-backed descriptors of the target.
func (p *DarwinProcess) ListHandles() ([]process.Handle, error) {
	pid := p.GetPID()
	if pid == 0 {
		return nil, process.ErrProcessNotOpen
	}

	size := C.rs_list_fds(C.int(pid), nil, 0)
	if size <= 0 {
		return nil, fmt.Errorf("proc_pidinfo(%d): %w", pid, process.ErrAccessDenied)
	}
	buf := C.malloc(C.size_t(size))
	defer C.free(buf)

	size = C.rs_list_fds(C.int(pid), buf, size)
	count := int(size) / int(C.sizeof_struct_proc_fdinfo)
	fds := unsafe.Slice((*C.struct_proc_fdinfo)(buf), count)

	pathBuf := (*C.char)(C.malloc(pathMaxLen))
	defer C.free(unsafe.Pointer(pathBuf))

	var handles []process.Handle
	for _, fd := range fds {
		h := process.Handle{Value: uint64(fd.proc_fd), Type: "other"}
		if fd.proc_fdtype == C.PROX_FDTYPE_VNODE {
			if C.rs_fd_path(C.int(pid), fd.proc_fd, pathBuf, pathMaxLen) == 0 {
				h.Type = "file"
				h.Path = C.GoString(pathBuf)
			}
		}
		handles = append(handles, h)
	}
	p.log.Debugln("Listed", len(handles), "descriptors")
	return handles, nil
}

func classifyKern(op string, addr process.ProcessMemoryAddress, kr C.kern_return_t) error {
	switch kr {
	case C.KERN_INVALID_ADDRESS, C.KERN_MEMORY_ERROR, C.KERN_PROTECTION_FAILURE:
		return fmt.Errorf("%s at %s: %w (kr=%d)", op, addr.ToString(), process.ErrAddressNotMapped, int(kr))
	case C.KERN_INVALID_ARGUMENT, C.KERN_FAILURE, C.KERN_NO_ACCESS:
		return fmt.Errorf("%s at %s: %w (kr=%d)", op, addr.ToString(), process.ErrAccessDenied, int(kr))
	}
	return fmt.Errorf("%s at %s failed: kr=%d", op, addr.ToString(), int(kr))
}
