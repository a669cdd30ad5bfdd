package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/onec-platform-tools/mcp-1c-platform-tools/bridge"
	"github.com/onec-platform-tools/mcp-1c-platform-tools/config"
	"github.com/onec-platform-tools/mcp-1c-platform-tools/ipc"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdin/stdout (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	a, err := opts.mustLoad(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log.WithComponent("server")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := ipc.NewClient(a.endpoint, ipc.WithLogger(a.log.WithComponent("ipc")))
	b := bridge.New(client, bridge.WithLogger(a.log.WithComponent("bridge")))

	version := config.ServerVersion(os.Getenv)
	s, reg := b.Setup(ctx, version)

	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(a.log.Get().Handler(), slog.LevelError))

	log.Info("server started (stdio)",
		"version", version,
		"outcome", reg.Outcome.String(),
		"tools", len(reg.Tools),
		"addr", a.endpoint.Address())

	err = stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server stopped", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
