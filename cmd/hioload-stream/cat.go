// File: cmd/hioload-stream/cat.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/facade"
	"github.com/momentics/hioload-stream/pool"
	"github.com/momentics/hioload-stream/reactor"
)

func catCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <file>",
		Short: "Stream a file through the decoder and print its units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			newDecoder, err := g.decoderFactory()
			if err != nil {
				return err
			}
			return runEngine(cmd.Context(), g, func(ctx context.Context, e *facade.Engine) error {
				units, err := catFile(ctx, e, args[0], newDecoder, g.unitSuffix(), cmd.OutOrStdout())
				if err == nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%d units\n", units)
				}
				return err
			})
		},
	}
}

// outcome records the first result of an asynchronous operation.
type outcome struct {
	once sync.Once
	ch   chan error
}

func newOutcome() *outcome { return &outcome{ch: make(chan error, 1)} }

func (o *outcome) report(err error) { o.once.Do(func() { o.ch <- err }) }

func (o *outcome) wait(ctx context.Context) error {
	select {
	case err := <-o.ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// catFile reads path through the file reactor and writes every unit to out.
func catFile(ctx context.Context, e *facade.Engine, path string, newDecoder func() api.Decoder, suffix []byte, out io.Writer) (int, error) {
	iof := e.Files()
	f := reactor.NewFile(path, api.ModeRead)
	res := newOutcome()
	units := 0

	var dec api.Decoder
	if newDecoder != nil {
		dec = newDecoder()
	}
	h := api.Handlers{
		OnData: func(buf *pool.Buffer, end bool) {
			defer buf.Release()
			if buf.Len() > 0 {
				units++
				if _, err := out.Write(buf.Bytes()); err != nil {
					res.report(err)
					return
				}
				if len(suffix) > 0 {
					_, _ = out.Write(suffix)
				}
			}
			switch {
			case end:
				res.report(nil)
			case dec == nil:
				// raw chunks are paced by the reader
				if err := iof.Read(f, 0); err != nil {
					res.report(err)
				}
			}
		},
		OnError: res.report,
	}
	if err := iof.Register(f, api.Registration{Decoder: dec, Owned: true, Handlers: h}); err != nil {
		return 0, err
	}
	err := iof.Read(f, 0)
	if err == nil {
		err = res.wait(ctx)
	}
	// units is owned by the decode strand until the registration is done
	<-iof.Unregister(f)
	_ = f.Close()
	return units, err
}
