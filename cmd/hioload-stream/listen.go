// File: cmd/hioload-stream/listen.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/client"
	"github.com/momentics/hioload-stream/decoder"
	"github.com/momentics/hioload-stream/facade"
	"github.com/momentics/hioload-stream/internal/logger"
)

func listenCmd(g *globalFlags) *cobra.Command {
	var echo bool
	cmd := &cobra.Command{
		Use:   "listen <address>",
		Short: "Accept TCP connections and print or echo their decoded units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			newDecoder, err := g.decoderFactory()
			if err != nil {
				return err
			}
			return runEngine(cmd.Context(), g, func(ctx context.Context, e *facade.Engine) error {
				ln, err := net.Listen("tcp", args[0])
				if err != nil {
					return api.Wrap(api.ErrCodeTransport, err, "listen %s", args[0])
				}
				return serve(ctx, e, ln, newDecoder, echo, g.decoder == "frames", g.unitSuffix(), cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVar(&echo, "echo", false, "send every unit back to its sender instead of printing it")
	return cmd
}

// serve accepts connections on ln until ctx is cancelled. Each connection
// becomes an attached client of the engine. Echoed frames are framed again.
func serve(ctx context.Context, e *facade.Engine, ln net.Listener, newDecoder func() api.Decoder, echo, reframe bool, suffix []byte, out io.Writer) error {
	log := logger.Logger("cli")
	log.Info("listening", "addr", ln.Addr().String())
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var outMu sync.Mutex
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return api.Wrap(api.ErrCodeTransport, err, "accept")
		}
		var opts []client.Option
		if newDecoder != nil {
			opts = append(opts, client.WithDecoder(newDecoder))
		}
		c := e.NewClient(opts...)
		c.RegisterHandler(client.HandlerFuncs{
			Data: func(data []byte, end bool) {
				if len(data) == 0 {
					return
				}
				if echo {
					var err error
					if reframe {
						err = c.Send(decoder.Frame(data), 0)
					} else {
						err = c.Write(data)
					}
					if err != nil {
						log.Debug("echo", "peer", conn.RemoteAddr().String(), "error", err)
					}
					return
				}
				outMu.Lock()
				defer outMu.Unlock()
				_, _ = out.Write(data)
				_, _ = out.Write(suffix)
			},
			Disconnection: func(peer net.Addr) {
				log.Info("peer gone", "peer", peer.String())
			},
		})
		if err := c.Attach(conn); err != nil {
			_ = conn.Close()
			log.Warn("attach", "peer", conn.RemoteAddr().String(), "error", err)
			continue
		}
		log.Info("peer connected", "peer", conn.RemoteAddr().String())
	}
}
