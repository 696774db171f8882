// Package attach opens the memory backend for the running platform.
package attach

import (
	"context"
	"fmt"

	"rocksniff/process"
)

// ByName finds the first process called name and opens it. Failing here is
// the only fatal error of a live session.
func ByName(ctx context.Context, name string) (process.MemoryAccess, process.ProcessInfo, error) {
	info, err := process.FindOneByName(ctx, name)
	if err != nil {
		return nil, process.ProcessInfo{}, err
	}
	mem, err := Open(info.PID, info.Name)
	if err != nil {
		return nil, info, fmt.Errorf("attach to %s (%d): %w", info.Name, info.PID, err)
	}
	return mem, info, nil
}
