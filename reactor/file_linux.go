//go:build linux

// File: reactor/file_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-stream/api"
)

// advise hints sequential access to the page cache for files read front
// to back. Failures are ignored.
func advise(f *os.File, mode api.Mode) {
	if mode != api.ModeRead {
		return
	}
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
