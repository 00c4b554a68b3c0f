// File: client/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"crypto/tls"
	"log/slog"
	"net"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/internal/logger"
)

// Option configures a TCPClient.
type Option func(*options)

type options struct {
	tls        *tls.Config
	newDecoder func() api.Decoder
	log        *slog.Logger
	resolver   *net.Resolver
	handlers   []EventHandler
}

// WithTLS enables a TLS handshake after the TCP connection is up. An empty
// ServerName is filled from the host part of the connect address.
func WithTLS(cfg *tls.Config) Option {
	return func(o *options) { o.tls = cfg }
}

// WithDecoder sets the factory invoked once per connection. The decoder it
// returns belongs to the client and is closed with the connection.
func WithDecoder(factory func() api.Decoder) Option {
	return func(o *options) { o.newDecoder = factory }
}

// WithLogger overrides the "client" subsystem logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithResolver replaces net.DefaultResolver for host and port lookups.
func WithResolver(r *net.Resolver) Option {
	return func(o *options) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithHandler registers h before the first connection.
func WithHandler(h EventHandler) Option {
	return func(o *options) {
		if h != nil {
			o.handlers = append(o.handlers, h)
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: logger.Logger("client"), resolver: net.DefaultResolver}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
