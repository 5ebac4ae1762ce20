package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"todo-mcp/go-backend/internal/composition/todoserver"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "todo-mcp:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "todo-mcp",
		Short:         "Todo list server speaking JSON-RPC over HTTP, SSE and stdio",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (optional)")

	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP call, stream and REST bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := todoserver.Build(todoserver.Options{
				ConfigPath: configPath,
				Addr:       addr,
				Version:    version,
				LogOutput:  os.Stderr,
			})
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			return app.RunHTTP(cmd.Context())
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.addr")

	stdio := &cobra.Command{
		Use:   "stdio",
		Short: "Serve one session over newline-delimited JSON-RPC on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := todoserver.Build(todoserver.Options{
				ConfigPath: configPath,
				Version:    version,
				LogOutput:  os.Stderr,
			})
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			return app.RunStdio(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "todo-mcp version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		},
	}

	root.AddCommand(serve, stdio, versionCmd)
	return root
}
