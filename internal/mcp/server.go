package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/strand-ai/strand/internal/knowledge"
	"github.com/strand-ai/strand/internal/log"
)

// defaultTopK is the result count used when a caller does not ask for a
// specific limit.
const defaultTopK int32 = 5

// Searcher is the slice of the knowledge store the server needs.
// *knowledge.Store satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Config wires a Server.
type Config struct {
	// Name and Version identify the server to clients during the MCP
	// handshake.
	Name    string
	Version string

	// Store answers search_knowledge calls.
	Store Searcher

	Logger log.Logger

	// TopK is the default result count per search. Zero takes the
	// package default.
	TopK int32
}

// Server exposes the knowledge base over MCP.
type Server struct {
	mcpServer *mcp.Server
	store     Searcher
	logger    log.Logger
	topK      int32
}

// NewServer creates the server and registers its tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.New("server name is required")
	}
	if cfg.Version == "" {
		return nil, errors.New("server version is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("knowledge store is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		store:  cfg.Store,
		logger: cfg.Logger,
		topK:   cfg.TopK,
	}

	if err := s.registerSearchKnowledge(); err != nil {
		return nil, fmt.Errorf("register search_knowledge: %w", err)
	}
	return s, nil
}

// Run serves MCP on the given transport. It blocks until the client
// disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("MCP server running", "tool", ToolSearchKnowledge)
	return s.mcpServer.Run(ctx, transport)
}
