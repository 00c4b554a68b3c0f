package client_test

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/client"
	"github.com/momentics/hioload-stream/decoder"
	"github.com/momentics/hioload-stream/internal/logger"
	"github.com/momentics/hioload-stream/reactor"
)

const waitFor = 5 * time.Second

func newIOSocket(t *testing.T) *reactor.IOSocket {
	t.Helper()
	ios, err := reactor.NewIOSocket(reactor.DefaultConfig(), reactor.WithLogger(logger.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ios.Close() })
	return ios
}

// events records what a client publishes.
type events struct {
	mu          sync.Mutex
	units       []string
	errs        []error
	disconnects atomic.Int32
	flushes     atomic.Int32
	lastPeer    net.Addr
}

func (e *events) handler() client.EventHandler {
	return client.HandlerFuncs{
		Data: func(data []byte, end bool) {
			e.mu.Lock()
			if len(data) > 0 {
				e.units = append(e.units, string(data))
			}
			e.mu.Unlock()
		},
		Flush: func() { e.flushes.Add(1) },
		Disconnection: func(peer net.Addr) {
			e.mu.Lock()
			e.lastPeer = peer
			e.mu.Unlock()
			e.disconnects.Add(1)
		},
		Error: func(err error) {
			e.mu.Lock()
			e.errs = append(e.errs, err)
			e.mu.Unlock()
		},
	}
}

func (e *events) unitList() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.units...)
}

// echoServer answers every line it reads with the same line.
func echoServer(t *testing.T, ln net.Listener) {
	t.Helper()
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadBytes('\n')
					if len(line) > 0 {
						if _, werr := conn.Write(line); werr != nil {
							return
						}
					}
					if err != nil {
						return
					}
				}
			}()
		}
	}()
}

func lines() api.Decoder { return decoder.Lines(1024) }

func TestConnectRefusedLeavesDisconnected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ev := &events{}
	c := client.New(newIOSocket(t), client.WithLogger(logger.Discard()), client.WithHandler(ev.handler()))
	err = c.Connect(context.Background(), addr)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrTransport)
	assert.Equal(t, api.StateDisconnected, c.State())
	assert.False(t, c.Connecting())
	assert.Zero(t, ev.disconnects.Load())
	assert.ErrorIs(t, c.Write([]byte("x")), api.ErrClosed)
}

func TestConnectBadAddress(t *testing.T) {
	c := client.New(newIOSocket(t), client.WithLogger(logger.Discard()))
	assert.ErrorIs(t, c.Connect(context.Background(), "no-port"), api.ErrTransport)
	assert.Equal(t, api.StateDisconnected, c.State())
}

func TestConnectingFalseWhileResolving(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	res := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			once.Do(func() { close(entered) })
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil, errors.New("resolver unavailable")
		},
	}
	c := client.New(newIOSocket(t), client.WithLogger(logger.Discard()), client.WithResolver(res))
	errc := make(chan error, 1)
	go func() { errc <- c.Connect(context.Background(), "stream.hioload.test:9000") }()

	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("resolver never queried")
	}
	assert.Equal(t, api.StateConnecting, c.State())
	assert.False(t, c.Connecting())
	assert.Nil(t, c.PeerAddress())

	close(release)
	assert.ErrorIs(t, <-errc, api.ErrTransport)
	assert.False(t, c.Connecting())
	assert.Equal(t, api.StateDisconnected, c.State())
}

func TestConnectingTrueDuringHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	// the peer never answers the client hello
	c := client.New(newIOSocket(t), client.WithLogger(logger.Discard()), client.WithTLS(&tls.Config{}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- c.Connect(ctx, ln.Addr().String()) }()

	select {
	case srv := <-accepted:
		defer srv.Close()
	case <-time.After(waitFor):
		t.Fatal("connection never accepted")
	}
	require.Eventually(t, c.Connecting, waitFor, time.Millisecond)
	assert.Equal(t, ln.Addr().String(), c.PeerAddress().String())
	assert.False(t, c.Connected())

	cancel()
	assert.ErrorIs(t, <-errc, api.ErrTransport)
	assert.False(t, c.Connecting())
	assert.Equal(t, api.StateDisconnected, c.State())
}

func TestConnectEchoAndDisconnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	echoServer(t, ln)

	ev := &events{}
	c := client.New(newIOSocket(t),
		client.WithLogger(logger.Discard()),
		client.WithDecoder(lines),
		client.WithHandler(ev.handler()))
	addr := ln.Addr().String()
	require.NoError(t, c.Connect(context.Background(), addr))
	assert.True(t, c.Connected())
	assert.Equal(t, addr, c.PeerAddress().String())

	// same address is a no-op, another one is refused
	require.NoError(t, c.Connect(context.Background(), addr))
	assert.ErrorIs(t, c.Connect(context.Background(), "127.0.0.1:1"), api.ErrInternal)

	require.NoError(t, c.Write([]byte("hello\nwor")))
	require.NoError(t, c.Write([]byte("ld\n")))
	require.Eventually(t, func() bool { return len(ev.unitList()) == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, []string{"hello\n", "world\n"}, ev.unitList())
	assert.Equal(t, uint64(12), c.Stats().Written)

	c.Disconnect()
	c.Disconnect()
	assert.Equal(t, api.StateDisconnected, c.State())
	assert.Equal(t, int32(1), ev.disconnects.Load())
	ev.mu.Lock()
	assert.Equal(t, addr, ev.lastPeer.String())
	ev.mu.Unlock()
	assert.ErrorIs(t, c.Write([]byte("late\n")), api.ErrClosed)

	// the client reconnects after a disconnect
	require.NoError(t, c.Connect(context.Background(), addr))
	assert.True(t, c.Connected())
	c.Disconnect()
	assert.Equal(t, int32(2), ev.disconnects.Load())
}

func TestPeerCloseDisconnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	ev := &events{}
	c := client.New(newIOSocket(t), client.WithLogger(logger.Discard()), client.WithHandler(ev.handler()))
	require.NoError(t, c.Connect(context.Background(), ln.Addr().String()))
	srv := <-accepted
	_, err = srv.Write([]byte("bye"))
	require.NoError(t, err)
	require.NoError(t, srv.Close())

	require.Eventually(t, func() bool { return ev.disconnects.Load() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, api.StateDisconnected, c.State())
	assert.Equal(t, []string{"bye"}, ev.unitList())

	c.Disconnect()
	assert.Equal(t, int32(1), ev.disconnects.Load())
}

func TestDecoderErrorDisconnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	echoServer(t, ln)

	ev := &events{}
	c := client.New(newIOSocket(t),
		client.WithLogger(logger.Discard()),
		client.WithDecoder(func() api.Decoder { return decoder.Lines(4) }),
		client.WithHandler(ev.handler()))
	require.NoError(t, c.Connect(context.Background(), ln.Addr().String()))
	require.NoError(t, c.Write([]byte("far too long\n")))

	require.Eventually(t, func() bool { return ev.disconnects.Load() == 1 }, waitFor, time.Millisecond)
	ev.mu.Lock()
	require.Len(t, ev.errs, 1)
	assert.ErrorIs(t, ev.errs[0], decoder.ErrUnitTooLong)
	ev.mu.Unlock()
}

func TestAttach(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	ev := &events{}
	c := client.New(newIOSocket(t), client.WithLogger(logger.Discard()))
	c.RegisterHandler(ev.handler())
	require.NoError(t, c.Attach(a))
	assert.True(t, c.Connected())
	assert.ErrorIs(t, c.Attach(a), api.ErrInternal)

	go func() { _, _ = b.Write([]byte("piped")) }()
	require.Eventually(t, func() bool { return len(ev.unitList()) == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, []string{"piped"}, ev.unitList())

	// a pipe never writes without blocking, so sends are queued and flushed
	go func() { _, _ = io.CopyN(io.Discard, b, 4) }()
	require.NoError(t, c.Write([]byte("pong")))
	require.Eventually(t, func() bool { return ev.flushes.Load() == 1 }, waitFor, time.Millisecond)

	c.Disconnect()
	assert.Equal(t, int32(1), ev.disconnects.Load())
}

func TestConnectTLS(t *testing.T) {
	ts := httptest.NewTLSServer(http.NotFoundHandler())
	defer ts.Close()

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: ts.TLS.Certificates})
	require.NoError(t, err)
	echoServer(t, ln)

	roots := x509.NewCertPool()
	roots.AddCert(ts.Certificate())

	ev := &events{}
	c := client.New(newIOSocket(t),
		client.WithLogger(logger.Discard()),
		client.WithTLS(&tls.Config{RootCAs: roots}),
		client.WithDecoder(lines),
		client.WithHandler(ev.handler()))
	require.NoError(t, c.Connect(context.Background(), ln.Addr().String()))
	require.True(t, c.Socket().Secure())

	require.NoError(t, c.Write([]byte("secret\n")))
	require.Eventually(t, func() bool { return len(ev.unitList()) == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, []string{"secret\n"}, ev.unitList())
	c.Disconnect()
}

func TestConnectTLSUntrusted(t *testing.T) {
	ts := httptest.NewTLSServer(http.NotFoundHandler())
	defer ts.Close()
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: ts.TLS.Certificates})
	require.NoError(t, err)
	echoServer(t, ln)

	c := client.New(newIOSocket(t), client.WithLogger(logger.Discard()), client.WithTLS(&tls.Config{}))
	err = c.Connect(context.Background(), ln.Addr().String())
	assert.ErrorIs(t, err, api.ErrTransport)
	assert.Equal(t, api.StateDisconnected, c.State())
}

func TestQueueRunsAfterSends(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	echoServer(t, ln)

	c := client.New(newIOSocket(t), client.WithLogger(logger.Discard()))
	res := c.Queue(runner{"idle", func() error { return nil }})
	assert.ErrorIs(t, <-res, api.ErrAborted)

	require.NoError(t, c.Connect(context.Background(), ln.Addr().String()))
	defer c.Disconnect()
	require.NoError(t, c.Write([]byte("a\n")))
	var written uint64
	res = c.Queue(runner{"check", func() error {
		written = c.Stats().Written
		return nil
	}})
	require.NoError(t, <-res)
	assert.Equal(t, uint64(2), written)
}

type runner struct {
	name string
	fn   func() error
}

func (r runner) Name() string { return r.name }
func (r runner) Run() error   { return r.fn() }
