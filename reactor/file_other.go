//go:build !linux

// File: reactor/file_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"os"

	"github.com/momentics/hioload-stream/api"
)

func advise(*os.File, api.Mode) {}
