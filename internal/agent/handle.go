package agent

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/strand-ai/strand/internal/capability"
	"github.com/strand-ai/strand/internal/log"
)

// BuildOptions carries the per-turn context into Factory.Build.
type BuildOptions struct {
	Prompt    string
	SessionID string
	UserID    string
	History   []Message
}

// Handle is one turn's runnable view of an agent or team. It owns a fresh
// MCP dialer whose connections live exactly one turn, the conversation
// history converted to model messages, and the builtin tools the roster
// entry and its members asked for.
type Handle struct {
	cfg     Config
	g       *genkit.Genkit
	dialer  *capability.GenkitDialer
	history []*ai.Message
	builtin map[string]ai.Tool
	logger  log.Logger
}

// Name returns the display name of the agent or team.
func (h *Handle) Name() string { return h.cfg.Name }

// Kind reports whether the handle runs a single agent or a team.
func (h *Handle) Kind() Kind { return h.cfg.Kind }

// Model returns the provider-qualified model label.
func (h *Handle) Model() string { return h.cfg.Model }

// Members returns the member configurations, empty for a single agent.
func (h *Handle) Members() []Config { return h.cfg.Members }

// Dialer returns the per-turn MCP host capability connections go through.
func (h *Handle) Dialer() *capability.GenkitDialer { return h.dialer }

// Capabilities returns the capability references of the handle and all its
// members in declaration order, deduplicated by provider identity.
func (h *Handle) Capabilities() []capability.Ref {
	var refs []capability.Ref
	seen := make(map[string]struct{})

	add := func(list []capability.Ref) {
		for _, ref := range list {
			key := ref.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			refs = append(refs, ref)
		}
	}

	add(h.cfg.Capabilities)
	for _, member := range h.cfg.Members {
		add(member.Capabilities)
	}
	return refs
}

// FinalEventKinds returns the backend labels that carry the authoritative
// final answer without following the "*_completed" naming convention. The
// classifier treats them as sentinels.
func (h *Handle) FinalEventKinds() []string {
	if h.cfg.Kind == KindTeam {
		return []string{teamScope + runResponseKind, runResponseKind}
	}
	return []string{runResponseKind}
}

// toolsFor returns the generate-time tool references for one leaf run: the
// leaf's own builtin tools plus every tool the turn's MCP connections
// expose. MCP listing failures degrade to builtins only.
func (h *Handle) toolsFor(ctx context.Context, names []string) []ai.ToolRef {
	var refs []ai.ToolRef
	for _, name := range names {
		if tool, ok := h.builtin[name]; ok {
			refs = append(refs, tool)
		}
	}

	active, err := h.dialer.ActiveTools(ctx)
	if err != nil {
		h.logger.Warn("listing capability tools", "agent", h.cfg.Name, "error", err)
		return refs
	}
	for _, tool := range active {
		refs = append(refs, tool)
	}
	return refs
}
