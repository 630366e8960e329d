//go:build linux
// +build linux

// File: affinity/affinity_linux.go
// Author: clustersched
//
// Linux implementation of thread CPU affinity via sched_setaffinity(2),
// through golang.org/x/sys/unix rather than cgo -- the one piece of
// platform control Go's standard library does not expose.

package affinity

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pinPlatform sets the calling thread's affinity to the given CPU core.
func pinPlatform(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity: %w", err)
	}
	return nil
}
