package attach

import (
	"rocksniff/process"
	"rocksniff/process_linux"
)

// Open attaches to pid; module is the main image name as mapped.
func Open(pid process.ProcessID, module string) (process.MemoryAccess, error) {
	p, err := process_linux.NewWithPID(pid, module)
	if err != nil {
		return nil, err
	}
	return p, nil
}
