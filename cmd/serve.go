package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strand-ai/strand/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve [addr]",
	Short: "Run the HTTP API server",
	Long: `Serve the JSON API: session management plus POST /api/turns, which
streams answers over SSE. The listen address comes from the config file
unless overridden by the positional argument or --addr.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (host:port), overrides config")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := serveAddr
	if len(args) > 0 {
		addr = args[0]
	}
	if addr != "" {
		if err := validateAddr(addr); err != nil {
			return fmt.Errorf("invalid address %q: %w", addr, err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	srv, err := api.NewServer(api.ServerConfig{
		Logger:   a.Logger,
		Engine:   a.Engine,
		Sessions: a.Sessions,
		Config:   a.Config,
		Pool:     a.Pool,
	})
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}

	return srv.Run(ctx, addr)
}
