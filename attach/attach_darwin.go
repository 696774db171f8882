//go:build darwin && cgo

package attach

import (
	"rocksniff/process"
	"rocksniff/process_darwin"
)

// Open attaches to pid. The main image is found by its Mach-O header, so
// module is unused.
func Open(pid process.ProcessID, _ string) (process.MemoryAccess, error) {
	p, err := process_darwin.NewWithPID(pid)
	if err != nil {
		return nil, err
	}
	return p, nil
}
