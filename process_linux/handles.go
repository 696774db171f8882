//go:build linux

package process_linux

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"rocksniff/process"
)

// ListHandles resolves every entry of /proc/<pid>/fd. Entries that vanish
// between the directory read and the readlink are skipped.
func (p *LinuxProcess) ListHandles() ([]process.Handle, error) {
	pid, err := p.currentPID()
	if err != nil {
		return nil, err
	}

	fdDir := fmt.Sprintf("/proc/%d/fd", pid)
	entries, err := os.ReadDir(fdDir)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("list %s: %w", fdDir, process.ErrAccessDenied)
		}
		return nil, fmt.Errorf("list %s: %w", fdDir, err)
	}

	var handles []process.Handle
	for _, entry := range entries {
		fd, err := strconv.ParseUint(entry.Name(), 10, 64)
		if err != nil {
			continue
		}
		target, err := os.Readlink(filepath.Join(fdDir, entry.Name()))
		if err != nil {
			continue
		}

		handles = append(handles, classifyTarget(fd, target))
	}

	p.log.Debugln("Listed", len(handles), "handles")
	return handles, nil
}

// classifyTarget turns a readlink result like "socket:[1234]" or
// "/path/to/file" into a Handle.
func classifyTarget(fd uint64, target string) process.Handle {
	h := process.Handle{Value: fd}
	switch {
	case strings.HasPrefix(target, "/"):
		h.Type = "file"
		h.Path = strings.TrimSuffix(target, " (deleted)")
	case strings.HasPrefix(target, "socket:"):
		h.Type = "socket"
	case strings.HasPrefix(target, "pipe:"):
		h.Type = "pipe"
	case strings.HasPrefix(target, "anon_inode:"):
		h.Type = "anon_inode"
	default:
		h.Type = "other"
	}
	return h
}
