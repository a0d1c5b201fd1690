// Package health contains internal helpers for probing the sync engine process.
package health

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessRunning reports whether a process whose executable name equals name
// (case-insensitive) is running for any user.
func ProcessRunning(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil {
			// processes may exit while we iterate
			continue
		}
		if strings.EqualFold(n, name) {
			return true, nil
		}
	}
	return false, nil
}
