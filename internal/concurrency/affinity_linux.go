//go:build linux

// File: internal/concurrency/affinity_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "golang.org/x/sys/unix"

// cpuSetSize is the number of CPUs a unix.CPUSet can describe.
const cpuSetSize = 1024

func platformPin(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	// pid 0 targets the calling thread
	return unix.SchedSetaffinity(0, &set)
}

func platformAllowedCPUs() []int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil
	}
	out := make([]int, 0, set.Count())
	for cpu := 0; cpu < cpuSetSize && len(out) < cap(out); cpu++ {
		if set.IsSet(cpu) {
			out = append(out, cpu)
		}
	}
	return out
}
