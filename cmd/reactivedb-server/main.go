// Command reactivedb-server runs the ReactiveDB TCP server:
// `server <port> <config_file>`.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/reactivedb/reactivedb/internal/bootstrap"
	"github.com/reactivedb/reactivedb/internal/config"
	"github.com/reactivedb/reactivedb/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reactivedb-server",
		Short:         "ReactiveDB embeddable database server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServerCmd())
	return root
}

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server <port> <config_file>",
		Short: "Start the TCP server on the given port using the given YAML config",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(args[0], args[1])
		},
	}
}

func runServer(port, configPath string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("reactivedb-server: %w", err)
	}

	built, err := bootstrap.Build(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("reactivedb-server: %w", err)
	}
	defer built.Close()

	srv := server.New(built.Database, built.Listeners, log)
	if err := srv.Serve(":" + port); err != nil {
		return fmt.Errorf("reactivedb-server: %w", err)
	}
	return nil
}
