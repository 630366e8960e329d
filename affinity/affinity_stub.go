//go:build !linux && !windows
// +build !linux,!windows

// File: affinity/affinity_stub.go
// Author: clustersched
//
// Stub for platforms without a supported affinity API.

package affinity

import "errors"

// pinPlatform is a stub for platforms where CPU affinity is not supported.
func pinPlatform(cpuID int) error {
	return errors.New("affinity: not supported on this platform")
}
