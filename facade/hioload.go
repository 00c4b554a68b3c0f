// File: facade/hioload.go
// Unified facade layer for hioload-stream.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine aggregates the executors, buffer pool, socket and file reactors,
// metrics and debug probes behind one value built from an immutable
// configuration. Shutdown tears them down in reverse order.

package facade

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/momentics/hioload-stream/client"
	"github.com/momentics/hioload-stream/control"
	"github.com/momentics/hioload-stream/internal/concurrency"
	"github.com/momentics/hioload-stream/internal/logger"
	"github.com/momentics/hioload-stream/pool"
	"github.com/momentics/hioload-stream/reactor"
)

// Config holds parameters immutable per run.
type Config struct {
	reactor.Config

	// MetricsNamespace prefixes every exported metric. Empty disables the
	// namespace, not the metrics.
	MetricsNamespace string
	// RuntimeMetrics adds the Go runtime and process collectors to the
	// registry.
	RuntimeMetrics bool
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		Config:           reactor.DefaultConfig(),
		MetricsNamespace: "hioload",
		RuntimeMetrics:   true,
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return fmt.Errorf("facade config: %w", err)
	}
	return nil
}

// Engine is the main facade type.
type Engine struct {
	config *Config
	log    *slog.Logger

	ioExec  *concurrency.Executor
	decExec *concurrency.Executor // nil when decoding shares ioExec
	pool    *pool.BufferPool

	registry *prometheus.Registry
	metrics  *control.Metrics
	probes   *control.Probes

	sockets *reactor.IOSocket
	files   *reactor.IOFile

	mu     sync.Mutex
	closed bool
}

// New constructs an Engine. A nil cfg selects DefaultConfig.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		config:   cfg,
		log:      logger.Logger("facade"),
		pool:     pool.NewBufferPool(),
		registry: prometheus.NewRegistry(),
		metrics:  control.NewMetrics(cfg.MetricsNamespace),
		probes:   control.NewProbes(),
	}
	if err := e.metrics.Register(e.registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	if cfg.RuntimeMetrics {
		e.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	control.RegisterPlatformProbes(e.probes)

	var execOpts []concurrency.ExecutorOption
	if cfg.PinWorkers {
		execOpts = append(execOpts, concurrency.WithCPUPinning())
	}
	e.ioExec = concurrency.NewExecutor("io", cfg.IOWorkers, execOpts...)
	e.probes.Register("executor.io", func() any { return e.ioExec.Stats() })
	if cfg.DecodeWorkers > 0 {
		e.decExec = concurrency.NewExecutor("decode", cfg.DecodeWorkers, execOpts...)
		e.probes.Register("executor.decode", func() any { return e.decExec.Stats() })
	}

	opts := []reactor.Option{
		reactor.WithMetrics(e.metrics),
		reactor.WithProbes(e.probes),
		reactor.WithBufferPool(e.pool),
		reactor.WithExecutors(e.ioExec, e.decExec),
	}
	var err error
	if e.sockets, err = reactor.NewIOSocket(cfg.Config, opts...); err != nil {
		e.closeExecutors()
		return nil, err
	}
	if e.files, err = reactor.NewIOFile(cfg.Config, opts...); err != nil {
		_ = e.sockets.Close()
		e.closeExecutors()
		return nil, err
	}
	e.probes.Register("pool", func() any { return e.pool.Stats() })

	e.log.Info("engine started",
		"io_workers", e.ioExec.NumWorkers(),
		"decode_workers", cfg.DecodeWorkers,
		"pinned", cfg.PinWorkers,
		"chunk_size", cfg.ChunkSize)
	return e, nil
}

// NewClient returns a disconnected TCP client driven by the socket reactor.
func (e *Engine) NewClient(opts ...client.Option) *client.TCPClient {
	return client.New(e.sockets, opts...)
}

// Sockets returns the socket reactor.
func (e *Engine) Sockets() *reactor.IOSocket { return e.sockets }

// Files returns the file reactor.
func (e *Engine) Files() *reactor.IOFile { return e.files }

// Metrics returns the engine metrics.
func (e *Engine) Metrics() *control.Metrics { return e.metrics }

// Registry returns the Prometheus registry holding the engine metrics.
func (e *Engine) Registry() *prometheus.Registry { return e.registry }

// Probes returns the debug probes.
func (e *Engine) Probes() *control.Probes { return e.probes }

// BufferPool returns the pool read chunks are drawn from.
func (e *Engine) BufferPool() *pool.BufferPool { return e.pool }

// Handler serves /metrics and /debug/probes.
func (e *Engine) Handler() http.Handler { return control.Handler(e.registry, e.probes) }

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return *e.config }

// Shutdown closes both reactors, then the executors. Tasks still queued
// are aborted, so pending runners report ErrAborted. Subsequent calls are
// no-ops.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	err := multierr.Combine(e.sockets.Close(), e.files.Close())
	e.closeExecutors()
	e.probes.Unregister("pool")
	if err != nil {
		e.log.Warn("engine shutdown", "error", err)
	} else {
		e.log.Info("engine stopped")
	}
	return err
}

func (e *Engine) closeExecutors() {
	e.ioExec.Close()
	e.probes.Unregister("executor.io")
	if e.decExec != nil {
		e.decExec.Close()
		e.probes.Unregister("executor.decode")
	}
}
