//go:build !linux

// File: reactor/socket_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "code.hybscloud.com/iox"

// tryWrite has no non-blocking path here: every send is queued.
func (s *Socket) tryWrite(p []byte, flags int) (int, error) {
	return 0, iox.ErrWouldBlock
}
