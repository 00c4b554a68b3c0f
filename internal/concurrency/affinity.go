// File: internal/concurrency/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CPU affinity for executor workers.

package concurrency

import (
	"errors"
	"runtime"
)

// ErrAffinityUnsupported is returned where threads cannot be pinned.
var ErrAffinityUnsupported = errors.New("cpu affinity not supported on this platform")

// PinCurrentThread locks the calling goroutine to its OS thread and binds
// that thread to cpu. The lock is kept even if binding fails.
func PinCurrentThread(cpu int) error {
	runtime.LockOSThread()
	return platformPin(cpu)
}

// AllowedCPUs lists the CPUs the process may run on, in ascending order.
func AllowedCPUs() []int {
	if cpus := platformAllowedCPUs(); len(cpus) > 0 {
		return cpus
	}
	out := make([]int, runtime.NumCPU())
	for i := range out {
		out[i] = i
	}
	return out
}
