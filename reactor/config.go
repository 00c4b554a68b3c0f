// File: reactor/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/momentics/hioload-stream/control"
	"github.com/momentics/hioload-stream/internal/concurrency"
	"github.com/momentics/hioload-stream/internal/logger"
	"github.com/momentics/hioload-stream/pool"
)

// Config tunes a reactor.
type Config struct {
	// ChunkSize is the largest single read, in bytes.
	ChunkSize int
	// MaxPendingReads bounds the chunks of one socket waiting for decode.
	// A full window stops reading from that socket until decode catches up.
	MaxPendingReads int
	// IOWorkers sizes the executor running writes and runners.
	IOWorkers int
	// DecodeWorkers sizes the decode executor; 0 shares IOWorkers' pool.
	DecodeWorkers int
	// PinWorkers binds executor workers to CPUs.
	PinWorkers bool
}

func (c Config) newExecutor(name string, workers int) *concurrency.Executor {
	var opts []concurrency.ExecutorOption
	if c.PinWorkers {
		opts = append(opts, concurrency.WithCPUPinning())
	}
	return concurrency.NewExecutor(name, workers, opts...)
}

// DefaultConfig returns the defaults used by the engine.
func DefaultConfig() Config {
	return Config{
		ChunkSize:       64 * 1024,
		MaxPendingReads: 16,
		IOWorkers:       runtime.NumCPU(),
		DecodeWorkers:   0,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	case c.MaxPendingReads <= 0:
		return fmt.Errorf("max pending reads must be positive, got %d", c.MaxPendingReads)
	case c.IOWorkers < 0:
		return fmt.Errorf("io workers must not be negative, got %d", c.IOWorkers)
	case c.DecodeWorkers < 0:
		return fmt.Errorf("decode workers must not be negative, got %d", c.DecodeWorkers)
	}
	return nil
}

// Option customizes a reactor.
type Option func(*options)

type options struct {
	log     *slog.Logger
	metrics *control.Metrics
	probes  *control.Probes
	pool    *pool.BufferPool
	ioExec  *concurrency.Executor
	decExec *concurrency.Executor
}

func buildOptions(opts []Option) options {
	o := options{
		log:  logger.Logger("reactor"),
		pool: pool.DefaultPool(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger replaces the reactor logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records traffic and events into m.
func WithMetrics(m *control.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithProbes publishes live endpoint stats into p.
func WithProbes(p *control.Probes) Option {
	return func(o *options) { o.probes = p }
}

// WithBufferPool sets the pool read chunks are drawn from.
func WithBufferPool(p *pool.BufferPool) Option {
	return func(o *options) { o.pool = p }
}

// WithExecutors shares executors owned by the caller. decode may equal io;
// a nil decode shares io. The reactor never closes shared executors.
func WithExecutors(io, decode *concurrency.Executor) Option {
	return func(o *options) {
		o.ioExec = io
		o.decExec = decode
		if decode == nil {
			o.decExec = io
		}
	}
}
