package attach

import (
	"rocksniff/process"
	"rocksniff/process_windows"
)

func Open(pid process.ProcessID, module string) (process.MemoryAccess, error) {
	p, err := process_windows.NewWithPID(pid, module)
	if err != nil {
		return nil, err
	}
	return p, nil
}
