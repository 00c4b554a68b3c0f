// File: cmd/hioload-stream/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// hioload-stream drives the engine from the command line: stream files
// through decoders, send data to a peer and serve decoded connections.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "hioload-stream: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "hioload-stream",
		Short: "Decoder-pipelined socket and file I/O",
		Long: `hioload-stream runs the socket and file reactors behind a small CLI.

Every command builds one engine. Inbound bytes are framed by the decoder
selected with --decoder (raw, lines or frames) before they are printed or
echoed. --metrics exposes Prometheus metrics and debug probes over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	g.bind(root)

	root.AddCommand(
		catCmd(g),
		sendCmd(g),
		listenCmd(g),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hioload-stream %s (%s)\n", version, commit)
		},
	}
}
