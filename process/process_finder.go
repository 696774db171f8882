package process

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	psprocess "github.com/shirou/gopsutil/v3/process"
)

// FindByName returns every running process whose executable name matches
// name, case-insensitively. Processes that vanish mid-enumeration are skipped.
func FindByName(ctx context.Context, name string) ([]ProcessInfo, error) {
	procs, err := psprocess.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var results []ProcessInfo
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if !matchesName(pname, name) {
			continue
		}

		info := ProcessInfo{PID: ProcessID(p.Pid), Name: pname}
		if exe, err := p.ExeWithContext(ctx); err == nil {
			info.Exe = exe
		}
		results = append(results, info)
	}

	return results, nil
}

// FindOneByName is FindByName that insists on at least one match and returns
// the first.
func FindOneByName(ctx context.Context, name string) (ProcessInfo, error) {
	matches, err := FindByName(ctx, name)
	if err != nil {
		return ProcessInfo{}, err
	}
	if len(matches) == 0 {
		return ProcessInfo{}, fmt.Errorf("%q: %w", name, ErrProcessNotFound)
	}
	return matches[0], nil
}

// commLen is the length Linux truncates /proc/<pid>/comm to.
const commLen = 15

// matchesName compares executable names, tolerating the ".exe" suffix Wine
// and Proton sometimes drop and the comm field truncation.
func matchesName(have, want string) bool {
	if strings.EqualFold(have, want) {
		return true
	}
	trim := func(s string) string {
		return strings.TrimSuffix(strings.ToLower(filepath.Base(s)), ".exe")
	}
	if trim(have) == trim(want) {
		return true
	}
	return len(have) == commLen && strings.HasPrefix(strings.ToLower(want), strings.ToLower(have))
}
