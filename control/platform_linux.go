//go:build linux

// control/platform_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux process probes: CPU count, descriptor limit and open descriptors.

package control

import (
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// RegisterPlatformProbes adds host-level probes to p.
func RegisterPlatformProbes(p *Probes) {
	p.Register("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	p.Register("platform.nofile", func() any {
		var lim unix.Rlimit
		if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
			return nil
		}
		return map[string]uint64{"soft": lim.Cur, "hard": lim.Max}
	})
	p.Register("platform.open_fds", func() any {
		entries, err := os.ReadDir("/proc/self/fd")
		if err != nil {
			return nil
		}
		return len(entries)
	})
}
