package reactor_test

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/internal/logger"
	"github.com/momentics/hioload-stream/pool"
	"github.com/momentics/hioload-stream/reactor"
)

func newIOSocket(t *testing.T, cfg reactor.Config, opts ...reactor.Option) *reactor.IOSocket {
	t.Helper()
	opts = append([]reactor.Option{reactor.WithLogger(logger.Discard())}, opts...)
	ios, err := reactor.NewIOSocket(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ios.Close() })
	return ios
}

func newIOFile(t *testing.T) *reactor.IOFile {
	t.Helper()
	iof, err := reactor.NewIOFile(reactor.DefaultConfig(), reactor.WithLogger(logger.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = iof.Close() })
	return iof
}

// tcpPair dials a loopback listener and returns the client socket and the
// accepted server side.
func tcpPair(t *testing.T) (*reactor.Socket, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()
	s, err := reactor.Dial(context.Background(), "tcp", ln.Addr().String())
	require.NoError(t, err)
	srv, ok := <-accepted
	require.True(t, ok)
	t.Cleanup(func() {
		_ = srv.Close()
		_ = s.Close()
	})
	return s, srv
}

func mustPipe(t *testing.T) net.Conn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a
}

// sink records every event of one registration.
type sink struct {
	mu      sync.Mutex
	data    []byte
	units   [][]byte
	ends    int
	errs    []error
	closes  atomic.Int32
	flushes atomic.Int32
}

func (k *sink) handlers() api.Handlers {
	return api.Handlers{
		OnData: func(buf *pool.Buffer, end bool) {
			k.mu.Lock()
			k.data = append(k.data, buf.Bytes()...)
			unit := make([]byte, buf.Len())
			copy(unit, buf.Bytes())
			k.units = append(k.units, unit)
			if end {
				k.ends++
			}
			k.mu.Unlock()
			buf.Release()
		},
		OnFlush: func() { k.flushes.Add(1) },
		OnClose: func(error) { k.closes.Add(1) },
		OnError: func(err error) {
			k.mu.Lock()
			k.errs = append(k.errs, err)
			k.mu.Unlock()
		},
	}
}

func (k *sink) bytes() []byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]byte(nil), k.data...)
}

func (k *sink) unitList() [][]byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([][]byte(nil), k.units...)
}

func (k *sink) errList() []error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]error(nil), k.errs...)
}

func (k *sink) endCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ends
}

func packet(b []byte) pool.Packet {
	buf := pool.DefaultPool().Get(len(b))
	buf.Append(b)
	return buf.Packet()
}

type runnerFunc struct {
	name string
	fn   func() error
}

func (r runnerFunc) Name() string { return r.name }
func (r runnerFunc) Run() error   { return r.fn() }

// timeline records the order in which events of one registration arrive.
type timeline struct {
	mu     sync.Mutex
	events []string
	data   []byte
}

func (tl *timeline) add(ev string) {
	tl.mu.Lock()
	tl.events = append(tl.events, ev)
	tl.mu.Unlock()
}

func (tl *timeline) handlers() api.Handlers {
	return api.Handlers{
		OnData: func(buf *pool.Buffer, end bool) {
			tl.mu.Lock()
			tl.events = append(tl.events, "data")
			tl.data = append(tl.data, buf.Bytes()...)
			tl.mu.Unlock()
			buf.Release()
		},
		OnFlush: func() { tl.add("flush") },
		OnError: func(error) { tl.add("error") },
		OnClose: func(error) { tl.add("close") },
	}
}

func (tl *timeline) list() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]string(nil), tl.events...)
}

func (tl *timeline) count(ev string) int {
	n := 0
	for _, e := range tl.list() {
		if e == ev {
			n++
		}
	}
	return n
}

// closedLast reports whether exactly one close arrived and nothing after it.
func (tl *timeline) closedLast() bool {
	events := tl.list()
	return tl.count("close") == 1 && events[len(events)-1] == "close"
}
