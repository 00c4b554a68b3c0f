//go:build !linux

// control/platform_other.go
// Author: momentics <momentics@gmail.com>

package control

import (
	"runtime"
)

// RegisterPlatformProbes adds host-level probes to p.
func RegisterPlatformProbes(p *Probes) {
	p.Register("platform.cpus", func() any {
		return runtime.NumCPU()
	})
}
