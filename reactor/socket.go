// File: reactor/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket endpoint: a connected stream transport plus accounting. TLS is an
// opaque wrapper with the same read/write surface.

package reactor

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/momentics/hioload-stream/api"
)

// Socket is a connected stream endpoint.
type Socket struct {
	counters

	id string

	mu     sync.RWMutex
	conn   net.Conn
	raw    syscall.RawConn // nil when the transport exposes no descriptor
	peer   net.Addr
	secure bool
}

var _ api.Endpoint = (*Socket)(nil)

// NewSocket adopts an already connected conn.
func NewSocket(conn net.Conn) *Socket {
	s := &Socket{id: uuid.New().String()}
	s.attach(conn)
	return s
}

// Dial connects to address and returns the socket. Resolution failures
// map to ErrNotFound, everything else to ErrTransport.
func Dial(ctx context.Context, network, address string) (*Socket, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, dialError(address, err)
	}
	return NewSocket(conn), nil
}

func dialError(address string, err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return api.Wrap(api.ErrCodeNotFound, err, "resolve %s", address)
	}
	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
		return api.Wrap(api.ErrCodePermission, err, "connect %s", address)
	}
	return api.Wrap(api.ErrCodeTransport, err, "connect %s", address)
}

func (s *Socket) attach(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.peer = conn.RemoteAddr()
	s.raw = nil
	s.secure = false
	if sc, ok := conn.(syscall.Conn); ok {
		if raw, err := sc.SyscallConn(); err == nil {
			s.raw = raw
		}
	}
	s.counters.reset()
}

// StartTLS wraps the connection in a TLS client and completes the
// handshake. On failure the socket is closed.
func (s *Socket) StartTLS(ctx context.Context, cfg *tls.Config) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return api.ErrClosed
	}
	tconn := tls.Client(conn, cfg)
	if err := tconn.HandshakeContext(ctx); err != nil {
		_ = s.Close()
		return api.Wrap(api.ErrCodeTransport, err, "tls handshake with %s", conn.RemoteAddr())
	}
	s.mu.Lock()
	s.conn = tconn
	s.raw = nil
	s.secure = true
	s.mu.Unlock()
	return nil
}

// ID returns the unique endpoint id.
func (s *Socket) ID() string { return s.id }

// Connected reports whether the socket holds a valid handle.
func (s *Socket) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// Secure reports whether the transport is TLS-wrapped.
func (s *Socket) Secure() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secure
}

// PeerAddress returns the remote address, nil if never connected.
func (s *Socket) PeerAddress() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peer
}

// LocalAddress returns the local address, nil when closed.
func (s *Socket) LocalAddress() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *Socket) handle() net.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Socket) rawConn() syscall.RawConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raw
}

// Read performs one blocking read into p. It returns 0, io.EOF at end of
// stream and an ErrSystemIO on failure.
func (s *Socket) Read(p []byte) (int, error) {
	conn := s.handle()
	if conn == nil {
		return 0, api.ErrClosed
	}
	n, err := conn.Read(p)
	s.addReaden(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, io.EOF
		}
		return n, api.Wrap(api.ErrCodeSystemIO, err, "socket read")
	}
	return n, nil
}

// Write blocks until all of p is written.
func (s *Socket) Write(p []byte) error {
	conn := s.handle()
	if conn == nil {
		return api.ErrClosed
	}
	n, err := conn.Write(p)
	s.addWritten(n)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return api.ErrClosed
		}
		return api.Wrap(api.ErrCodeSystemIO, err, "socket write")
	}
	return nil
}

func (s *Socket) setReadDeadline(t time.Time) {
	if conn := s.handle(); conn != nil {
		_ = conn.SetReadDeadline(t)
	}
}

// Close releases the handle. Counters are kept until Reset.
func (s *Socket) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.raw = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return api.Wrap(api.ErrCodeSystemIO, err, "socket close")
	}
	return nil
}

// Reset releases the handle and zeroes the counters so the object can be
// reused for a new connection.
func (s *Socket) Reset() {
	_ = s.Close()
	s.mu.Lock()
	s.peer = nil
	s.secure = false
	s.mu.Unlock()
	s.counters.reset()
}

// Stats returns an accounting snapshot.
func (s *Socket) Stats() api.Stats {
	return api.Stats{
		ID:       s.id,
		Kind:     kindSocket,
		Readen:   s.Readen(),
		Written:  s.Written(),
		Queueing: s.Queueing(),
		Open:     s.Connected(),
	}
}

func (s *Socket) acct() *counters { return &s.counters }
func (s *Socket) kind() string    { return kindSocket }
func (s *Socket) shutdown() error { return s.Close() }
