//go:build !linux && !windows && !(darwin && cgo)

package attach

import "rocksniff/process"

func Open(process.ProcessID, string) (process.MemoryAccess, error) {
	return nil, process.ErrNotSupported
}
