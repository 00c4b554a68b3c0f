//go:build linux

// File: reactor/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking send on the raw descriptor, used by the send fast path.

package reactor

import (
	"errors"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-stream/api"
)

// tryWrite attempts one non-blocking send of p. A short or refused write
// returns iox.ErrWouldBlock with the count already sent. Transports without
// a descriptor (TLS) always report would-block and go through the queue.
func (s *Socket) tryWrite(p []byte, flags int) (int, error) {
	raw := s.rawConn()
	if raw == nil {
		return 0, iox.ErrWouldBlock
	}
	var (
		n    int
		serr error
	)
	err := raw.Write(func(fd uintptr) bool {
		n, serr = unix.SendmsgN(int(fd), p, nil, nil, flags|unix.MSG_DONTWAIT|unix.MSG_NOSIGNAL)
		// one attempt only, never park on the poller
		return true
	})
	if err != nil {
		return 0, api.ErrClosed
	}
	if serr != nil {
		if errors.Is(serr, unix.EAGAIN) || errors.Is(serr, unix.EINTR) {
			return 0, iox.ErrWouldBlock
		}
		return 0, api.Wrap(api.ErrCodeSystemIO, serr, "socket send")
	}
	s.addWritten(n)
	if n < len(p) {
		return n, iox.ErrWouldBlock
	}
	return n, nil
}
