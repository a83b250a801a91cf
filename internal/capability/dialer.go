package capability

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/mcp"
)

// GenkitDialer connects providers through an MCP host and surfaces their
// tools to the model layer. Create one per turn: the host tracks which
// servers are active, and that set must stay private to the acquiring
// turn so concurrent turns cannot release each other's connections.
type GenkitDialer struct {
	g    *genkit.Genkit
	host *mcp.MCPHost
}

// NewGenkitDialer creates a dialer with an empty host; providers are added
// as they are dialed.
func NewGenkitDialer(g *genkit.Genkit) (*GenkitDialer, error) {
	host, err := mcp.NewMCPHost(g, mcp.MCPHostOptions{
		Name:       "strand",
		Version:    "1.0.0",
		MCPServers: []mcp.MCPServerConfig{},
	})
	if err != nil {
		return nil, fmt.Errorf("create MCP host: %w", err)
	}
	return &GenkitDialer{g: g, host: host}, nil
}

// Dial connects to the provider and registers its tools with the host.
func (d *GenkitDialer) Dial(ctx context.Context, ref Ref) (Conn, error) {
	if err := d.host.Connect(ctx, d.g, ref.Name, ref.clientOptions()); err != nil {
		return nil, fmt.Errorf("connect capability %q: %w", ref.Name, err)
	}
	return &hostConn{host: d.host, name: ref.Name}, nil
}

// ActiveTools returns the tools of every provider this dialer has open,
// namespaced by provider name.
func (d *GenkitDialer) ActiveTools(ctx context.Context) ([]ai.Tool, error) {
	tools, err := d.host.GetActiveTools(ctx, d.g)
	if err != nil {
		return nil, fmt.Errorf("list capability tools: %w", err)
	}
	return tools, nil
}

type hostConn struct {
	host *mcp.MCPHost
	name string
}

func (c *hostConn) Close(ctx context.Context) error {
	return c.host.Disconnect(ctx, c.name)
}
