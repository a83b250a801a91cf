package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/strand-ai/strand/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose knowledge search over the Model Context Protocol",
	Long: `Serve the knowledge base to MCP clients over stdio. Logs go to
stderr so the protocol stream on stdout stays clean. Register the
binary with a client as:

	{"command": "strand", "args": ["mcp"]}`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	server, err := mcp.NewServer(mcp.Config{
		Name:    "strand",
		Version: Version,
		Store:   a.Knowledge,
		Logger:  a.Logger,
	})
	if err != nil {
		return fmt.Errorf("create mcp server: %w", err)
	}

	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	a.Logger.Info("mcp server stopped")
	return nil
}
