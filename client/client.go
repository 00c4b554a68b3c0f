// File: client/client.go
// Package client provides the TCP session facade on top of the socket reactor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A TCPClient owns at most one connection at a time and walks the states
// Disconnected -> Connecting -> Connected -> Disconnected. Reactor events
// are republished to the registered EventHandlers; a peer close or a fatal
// error drives the same disconnect transition as an explicit Disconnect.

package client

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/pool"
	"github.com/momentics/hioload-stream/reactor"
)

// TCPClient is a reconnectable TCP session bound to an IOSocket.
type TCPClient struct {
	ios        *reactor.IOSocket
	tls        *tls.Config
	newDecoder func() api.Decoder
	resolver   *net.Resolver
	log        *slog.Logger

	mu       sync.Mutex
	state    api.SessionState
	gen      uint64 // bumped on every disconnect; stale events are ignored
	address  string
	peer     net.Addr
	sock     *reactor.Socket
	handlers []EventHandler
}

// New returns a disconnected client driven by ios.
func New(ios *reactor.IOSocket, opts ...Option) *TCPClient {
	o := buildOptions(opts)
	return &TCPClient{
		ios:        ios,
		tls:        o.tls,
		newDecoder: o.newDecoder,
		resolver:   o.resolver,
		log:        o.log,
		handlers:   o.handlers,
	}
}

// RegisterHandler adds h to the handlers notified of session events.
func (c *TCPClient) RegisterHandler(h EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Connect resolves address, dials it and, when TLS is configured, completes
// the handshake before reporting Connected. Connecting again to the same
// address is a no-op; another address while connected is an internal error.
func (c *TCPClient) Connect(ctx context.Context, address string) error {
	c.mu.Lock()
	if c.state != api.StateDisconnected {
		same := c.address == address
		c.mu.Unlock()
		if same {
			return nil
		}
		return api.NewError(api.ErrCodeInternal, "client already bound").
			WithContext("address", c.Address()).WithContext("requested", address)
	}
	c.state = api.StateConnecting
	c.address = address
	c.peer = nil
	gen := c.gen
	c.mu.Unlock()

	host, raddr, err := resolve(ctx, c.resolver, address)
	if err != nil {
		c.abandon(gen, err)
		return err
	}
	c.mu.Lock()
	if c.gen == gen {
		c.peer = raddr
	}
	c.mu.Unlock()

	c.log.Debug("connecting", "address", address, "peer", raddr.String())
	sock, err := reactor.Dial(ctx, "tcp", raddr.String())
	if err != nil {
		c.abandon(gen, err)
		return err
	}
	if c.tls != nil {
		cfg := c.tls.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
		if err := sock.StartTLS(ctx, cfg); err != nil {
			c.abandon(gen, err)
			return err
		}
	}
	return c.establish(sock, gen)
}

// Attach adopts an already connected conn and moves straight to Connected.
func (c *TCPClient) Attach(conn net.Conn) error {
	c.mu.Lock()
	if c.state != api.StateDisconnected {
		c.mu.Unlock()
		return api.NewError(api.ErrCodeInternal, "client already bound").WithContext("address", c.Address())
	}
	c.state = api.StateConnecting
	c.peer = conn.RemoteAddr()
	c.address = c.peer.String()
	gen := c.gen
	c.mu.Unlock()
	return c.establish(reactor.NewSocket(conn), gen)
}

func resolve(ctx context.Context, res *net.Resolver, address string) (string, *net.TCPAddr, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return "", nil, api.Wrap(api.ErrCodeTransport, err, "parse address %q", address)
	}
	pn, err := res.LookupPort(ctx, "tcp", port)
	if err != nil {
		return "", nil, api.Wrap(api.ErrCodeTransport, err, "resolve port of %s", address)
	}
	if ip := net.ParseIP(host); ip != nil {
		return host, &net.TCPAddr{IP: ip, Port: pn}, nil
	}
	addrs, err := res.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return "", nil, api.Wrap(api.ErrCodeTransport, err, "resolve %s", address)
	}
	return host, &net.TCPAddr{IP: addrs[0].IP, Port: pn, Zone: addrs[0].Zone}, nil
}

// establish registers sock unless a Disconnect raced the connect.
func (c *TCPClient) establish(sock *reactor.Socket, gen uint64) error {
	c.mu.Lock()
	if c.gen != gen || c.state != api.StateConnecting {
		c.mu.Unlock()
		_ = sock.Close()
		return api.Wrap(api.ErrCodeAborted, api.ErrClosed, "connect %s", c.Address())
	}
	var dec api.Decoder
	if c.newDecoder != nil {
		dec = c.newDecoder()
	}
	reg := api.Registration{Decoder: dec, Owned: true, Handlers: c.reactorHandlers(gen)}
	if err := c.ios.Register(sock, reg); err != nil {
		c.mu.Unlock()
		_ = sock.Close()
		c.abandon(gen, err)
		return err
	}
	c.sock = sock
	c.peer = sock.PeerAddress()
	c.state = api.StateConnected
	c.mu.Unlock()

	c.log.Info("connected", "endpoint", sock.ID(), "peer", addrString(sock.PeerAddress()), "secure", sock.Secure())
	return nil
}

// abandon reverts a failed connect attempt. A failed attempt was never
// connected, so no disconnection event fires.
func (c *TCPClient) abandon(gen uint64, err error) {
	c.mu.Lock()
	if c.gen == gen && c.state == api.StateConnecting {
		c.state = api.StateDisconnected
		c.gen++
	}
	c.mu.Unlock()
	c.log.Warn("connect failed", "address", c.Address(), "error", err)
}

func (c *TCPClient) reactorHandlers(gen uint64) api.Handlers {
	return api.Handlers{
		OnData: func(buf *pool.Buffer, end bool) {
			for _, h := range c.snapshot() {
				h.OnData(buf.Bytes(), end)
			}
			buf.Release()
		},
		OnFlush: func() {
			for _, h := range c.snapshot() {
				h.OnFlush()
			}
		},
		OnError: func(err error) {
			c.log.Warn("session error", "address", c.Address(), "error", err)
			for _, h := range c.snapshot() {
				h.OnError(err)
			}
		},
		OnClose: func(err error) { c.disconnect(gen, err) },
	}
}

func (c *TCPClient) snapshot() []EventHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]EventHandler(nil), c.handlers...)
}

// Disconnect closes the connection. It is idempotent: only the transition
// out of Connecting or Connected fires OnDisconnection.
func (c *TCPClient) Disconnect() {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.disconnect(gen, nil)
}

func (c *TCPClient) disconnect(gen uint64, cause error) {
	c.mu.Lock()
	if c.gen != gen || c.state == api.StateDisconnected {
		c.mu.Unlock()
		return
	}
	sock, peer := c.sock, c.peer
	c.sock = nil
	c.state = api.StateDisconnected
	c.gen++
	handlers := append([]EventHandler(nil), c.handlers...)
	c.mu.Unlock()

	if sock != nil {
		c.ios.Unregister(sock)
		_ = sock.Close()
	}
	if cause != nil {
		c.log.Info("disconnected", "peer", addrString(peer), "cause", cause)
	} else {
		c.log.Info("disconnected", "peer", addrString(peer))
	}
	for _, h := range handlers {
		h.OnDisconnection(peer)
	}
}

// Send writes pkt to the peer. The client takes ownership of pkt.
func (c *TCPClient) Send(pkt pool.Packet, flags int) error {
	sock := c.Socket()
	if sock == nil {
		pkt.Release()
		return api.ErrClosed
	}
	return c.ios.Send(sock, pkt, flags)
}

// Write copies p into a pooled packet and sends it.
func (c *TCPClient) Write(p []byte) error {
	buf := pool.DefaultPool().Get(len(p))
	buf.Append(p)
	return c.Send(buf.Packet(), 0)
}

// Queue runs runner behind every pending send of the connection.
func (c *TCPClient) Queue(runner api.Runner) <-chan error {
	sock := c.Socket()
	if sock == nil {
		res := make(chan error, 1)
		res <- api.Wrap(api.ErrCodeAborted, api.ErrClosed, "runner %s", runner.Name())
		return res
	}
	return c.ios.Queue(sock, runner)
}

// State returns the current session state.
func (c *TCPClient) State() api.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the session is established.
func (c *TCPClient) Connected() bool { return c.State() == api.StateConnected }

// Connecting reports whether a peer address is known but the session is
// not established yet. It stays false while the address is resolved.
func (c *TCPClient) Connecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == api.StateConnecting && c.peer != nil
}

// Address returns the address of the last Connect or Attach.
func (c *TCPClient) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// PeerAddress returns the resolved peer of the last Connect or Attach.
func (c *TCPClient) PeerAddress() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// Socket returns the connected socket, or nil.
func (c *TCPClient) Socket() *reactor.Socket {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != api.StateConnected {
		return nil
	}
	return c.sock
}

// Stats returns the counters of the current connection.
func (c *TCPClient) Stats() api.Stats {
	if sock := c.Socket(); sock != nil {
		return sock.Stats()
	}
	return api.Stats{Kind: "socket"}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
