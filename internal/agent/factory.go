package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/strand-ai/strand/internal/capability"
	"github.com/strand-ai/strand/internal/log"
)

// Factory builds per-turn handles over a shared genkit instance.
type Factory struct {
	g       *genkit.Genkit
	builtin map[string]ai.Tool
	logger  log.Logger
}

// NewFactory creates a factory. builtins are the registered local tools
// roster entries may reference by name.
func NewFactory(g *genkit.Genkit, builtins []ai.Tool, logger log.Logger) (*Factory, error) {
	if g == nil {
		return nil, errors.New("genkit instance is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	byName := make(map[string]ai.Tool, len(builtins))
	for _, tool := range builtins {
		byName[tool.Name()] = tool
	}
	return &Factory{g: g, builtin: byName, logger: logger}, nil
}

// Build resolves a config into a runnable handle. Every handle gets a fresh
// MCP dialer so capability connections stay private to one turn.
func (f *Factory) Build(ctx context.Context, cfg Config, opts BuildOptions) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("agent config needs a name")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("agent %q has no model", cfg.Name)
	}

	dialer, err := capability.NewGenkitDialer(f.g)
	if err != nil {
		return nil, fmt.Errorf("build agent %q: %w", cfg.Name, err)
	}

	h := &Handle{
		cfg:     cfg,
		g:       f.g,
		dialer:  dialer,
		history: historyMessages(opts.History),
		builtin: f.resolveTools(cfg),
		logger:  f.logger,
	}

	f.logger.Debug("agent handle built",
		"agent", cfg.Name,
		"kind", cfg.Kind,
		"model", cfg.Model,
		"members", len(cfg.Members),
		"capabilities", len(h.Capabilities()),
		"session_id", opts.SessionID,
		"prompt_len", len(opts.Prompt),
	)
	return h, nil
}

// resolveTools maps the builtin tool names of the config and its members to
// registered tools. Unknown names are logged and skipped; a missing local
// tool must not sink the turn.
func (f *Factory) resolveTools(cfg Config) map[string]ai.Tool {
	names := make([]string, 0, len(cfg.Tools))
	names = append(names, cfg.Tools...)
	for _, member := range cfg.Members {
		names = append(names, member.Tools...)
	}

	resolved := make(map[string]ai.Tool, len(names))
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue
		}
		tool, ok := f.builtin[name]
		if !ok {
			f.logger.Warn("unknown builtin tool", "agent", cfg.Name, "tool", name)
			continue
		}
		resolved[name] = tool
	}
	return resolved
}

// historyMessages converts stored history to model messages. Each call
// allocates fresh messages: genkit mutates message content in place while
// rendering, so handles must never share message objects.
func historyMessages(history []Message) []*ai.Message {
	if len(history) == 0 {
		return nil
	}
	messages := make([]*ai.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case RoleModel:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(m.Text)))
		default:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(m.Text)))
		}
	}
	return messages
}
