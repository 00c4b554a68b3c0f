// File: cmd/hioload-stream/flags.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/decoder"
	"github.com/momentics/hioload-stream/facade"
	"github.com/momentics/hioload-stream/internal/logger"
)

// globalFlags are shared by every command.
type globalFlags struct {
	chunkSize     int
	pendingReads  int
	ioWorkers     int
	decodeWorkers int
	pinWorkers    bool
	metricsAddr   string
	decoder       string
	maxUnit       int
}

func (g *globalFlags) bind(cmd *cobra.Command) {
	def := facade.DefaultConfig()
	fs := cmd.PersistentFlags()
	fs.IntVar(&g.chunkSize, "chunk-size", def.ChunkSize, "largest single read in bytes")
	fs.IntVar(&g.pendingReads, "pending-reads", def.MaxPendingReads, "chunks a socket may read ahead of its decoder")
	fs.IntVar(&g.ioWorkers, "io-workers", def.IOWorkers, "workers running writes and runners")
	fs.IntVar(&g.decodeWorkers, "decode-workers", def.DecodeWorkers, "dedicated decode workers, 0 shares the io workers")
	fs.BoolVar(&g.pinWorkers, "pin-workers", false, "bind executor workers to CPUs")
	fs.StringVar(&g.metricsAddr, "metrics", "", "serve /metrics and /debug/probes on this address")
	fs.StringVar(&g.decoder, "decoder", "raw", "inbound framing: raw, lines or frames")
	fs.IntVar(&g.maxUnit, "max-unit", 1<<20, "largest line or frame accepted by the decoder")
}

func (g *globalFlags) config() *facade.Config {
	cfg := facade.DefaultConfig()
	cfg.ChunkSize = g.chunkSize
	cfg.MaxPendingReads = g.pendingReads
	cfg.IOWorkers = g.ioWorkers
	cfg.DecodeWorkers = g.decodeWorkers
	cfg.PinWorkers = g.pinWorkers
	return cfg
}

// decoderFactory returns nil for raw chunks.
func (g *globalFlags) decoderFactory() (func() api.Decoder, error) {
	switch g.decoder {
	case "", "raw":
		return nil, nil
	case "lines":
		return func() api.Decoder { return decoder.Lines(g.maxUnit) }, nil
	case "frames":
		return func() api.Decoder { return decoder.LengthPrefixed(g.maxUnit) }, nil
	default:
		return nil, fmt.Errorf("unknown decoder %q", g.decoder)
	}
}

// unitSuffix terminates printed units that carry no separator of their own.
func (g *globalFlags) unitSuffix() []byte {
	if g.decoder == "frames" {
		return []byte{'\n'}
	}
	return nil
}

// runEngine builds an engine, serves metrics when asked and runs fn. The
// engine is shut down once fn returns or ctx is cancelled.
func runEngine(ctx context.Context, g *globalFlags, fn func(ctx context.Context, e *facade.Engine) error) error {
	e, err := facade.New(g.config())
	if err != nil {
		return err
	}
	log := logger.Logger("cli")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		defer cancel()
		return fn(gctx, e)
	})
	if g.metricsAddr != "" {
		srv := &http.Server{Addr: g.metricsAddr, Handler: e.Handler(), ReadHeaderTimeout: 5 * time.Second}
		grp.Go(func() error {
			log.Info("serving metrics", "addr", g.metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		grp.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}
	err = grp.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return multierr.Append(err, e.Shutdown())
}
