// File: cmd/hioload-stream/send.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/client"
	"github.com/momentics/hioload-stream/decoder"
	"github.com/momentics/hioload-stream/facade"
	"github.com/momentics/hioload-stream/pool"
	"github.com/momentics/hioload-stream/reactor"
)

type sendFlags struct {
	useTLS     bool
	insecure   bool
	serverName string
	frame      bool
	linger     time.Duration
}

func sendCmd(g *globalFlags) *cobra.Command {
	sf := &sendFlags{}
	cmd := &cobra.Command{
		Use:   "send <address> [file]",
		Short: "Send a file or stdin to a TCP peer and print what it answers",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			newDecoder, err := g.decoderFactory()
			if err != nil {
				return err
			}
			return runEngine(cmd.Context(), g, func(ctx context.Context, e *facade.Engine) error {
				return send(ctx, e, sf, args, newDecoder, g.unitSuffix(), cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
	fs := cmd.Flags()
	fs.BoolVar(&sf.useTLS, "tls", false, "wrap the connection in TLS")
	fs.BoolVar(&sf.insecure, "insecure", false, "skip TLS certificate verification")
	fs.StringVar(&sf.serverName, "server-name", "", "TLS server name, defaults to the address host")
	fs.BoolVar(&sf.frame, "frame", false, "send every input chunk as a length-prefixed frame")
	fs.DurationVar(&sf.linger, "linger", 0, "keep reading replies this long after the input is sent")
	return cmd
}

// step is a Runner built from a function.
type step struct {
	name string
	fn   func() error
}

func (s step) Name() string { return s.name }
func (s step) Run() error   { return s.fn() }

func send(ctx context.Context, e *facade.Engine, sf *sendFlags, args []string, newDecoder func() api.Decoder, suffix []byte, stdin io.Reader, out io.Writer) error {
	var outMu sync.Mutex
	closed := newOutcome()
	opts := []client.Option{
		client.WithHandler(client.HandlerFuncs{
			Data: func(data []byte, end bool) {
				if len(data) == 0 {
					return
				}
				outMu.Lock()
				defer outMu.Unlock()
				_, _ = out.Write(data)
				_, _ = out.Write(suffix)
			},
			Disconnection: func(net.Addr) { closed.report(api.ErrClosed) },
			Error:         closed.report,
		}),
	}
	if newDecoder != nil {
		opts = append(opts, client.WithDecoder(newDecoder))
	}
	if sf.useTLS {
		opts = append(opts, client.WithTLS(&tls.Config{
			ServerName:         sf.serverName,
			InsecureSkipVerify: sf.insecure, //nolint:gosec // opt-in flag
		}))
	}
	c := e.NewClient(opts...)
	if err := c.Connect(ctx, args[0]); err != nil {
		return err
	}
	defer c.Disconnect()

	packet := func(p []byte) pool.Packet {
		if sf.frame {
			return decoder.Frame(p)
		}
		buf := e.BufferPool().Get(len(p))
		buf.Append(p)
		return buf.Packet()
	}

	sent := newOutcome()
	if len(args) == 2 {
		if err := sendFile(e, c, args[1], sf.frame, sent); err != nil {
			return err
		}
	} else {
		go sendReader(c, stdin, e.Config().ChunkSize, packet, sent)
	}

	select {
	case err := <-sent.ch:
		if err != nil {
			return err
		}
	case err := <-closed.ch:
		return fmt.Errorf("peer %s: %w", args[0], err)
	case <-ctx.Done():
		return nil
	}
	stats := c.Stats()
	fmt.Fprintf(os.Stderr, "sent %d bytes to %s\n", stats.Written, args[0])

	if sf.linger > 0 {
		select {
		case <-time.After(sf.linger):
		case <-closed.ch:
		case <-ctx.Done():
		}
	}
	return nil
}

// sendReader copies r to the client chunk by chunk, then waits for the
// write queue to drain.
func sendReader(c *client.TCPClient, r io.Reader, chunk int, packet func([]byte) pool.Packet, sent *outcome) {
	buf := make([]byte, chunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if serr := c.Send(packet(buf[:n]), 0); serr != nil {
				sent.report(serr)
				return
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			sent.report(err)
			return
		}
	}
	sent.report(<-c.Queue(step{name: "drained", fn: func() error { return nil }}))
}

// sendFile streams path through the file reactor. Each chunk is read only
// once the previous one has been written, so the socket paces the file.
func sendFile(e *facade.Engine, c *client.TCPClient, path string, frame bool, sent *outcome) error {
	iof := e.Files()
	f := reactor.NewFile(path, api.ModeRead)
	finish := func(err error) {
		sent.report(err)
		go func() {
			<-iof.Unregister(f)
			_ = f.Close()
		}()
	}
	next := step{name: "read-next", fn: func() error { return iof.Read(f, 0) }}

	h := api.Handlers{
		OnData: func(buf *pool.Buffer, end bool) {
			if buf.Len() > 0 {
				var pkt pool.Packet
				if frame {
					pkt = decoder.Frame(buf.Bytes())
					buf.Release()
				} else {
					pkt = buf.Packet()
				}
				if err := c.Send(pkt, 0); err != nil {
					finish(err)
					return
				}
			} else {
				buf.Release()
			}
			if end {
				res := c.Queue(step{name: "drained", fn: func() error { return nil }})
				go func() { finish(<-res) }()
				return
			}
			_ = c.Queue(next)
		},
		OnError: finish,
	}
	if err := iof.Register(f, api.Registration{Handlers: h}); err != nil {
		return err
	}
	return iof.Read(f, 0)
}
