package agent

import (
	"github.com/strand-ai/strand/internal/capability"
	"github.com/strand-ai/strand/internal/config"
	"github.com/strand-ai/strand/internal/routing"
)

// Kind discriminates the two runnable handle shapes.
type Kind string

const (
	// KindAgent is a single agent answering directly.
	KindAgent Kind = "agent"

	// KindTeam is a coordinator that may delegate to member agents before
	// synthesizing the final answer.
	KindTeam Kind = "team"
)

// Conversation roles as stored by the session layer.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one half of a prior exchange.
type Message struct {
	Role string
	Text string
}

// Config describes one runnable agent or team resolved from a roster
// declaration: everything the factory needs to build a handle, with MCP
// server names already resolved to capability references. Members are at
// most one level deep.
type Config struct {
	ID           string
	Name         string
	Kind         Kind
	Role         string
	Instructions string
	Skills       []string
	Tools        []string
	Capabilities []capability.Ref
	Model        string
	Temperature  float32
	Coordination string
	Members      []Config
}

// FromSpec resolves a roster entry against the loaded configuration.
// MCP server references removed by the allow/exclude filters are dropped
// here too: disabling a server in configuration disables it everywhere.
func FromSpec(spec config.AgentSpec, cfg *config.Config) Config {
	return fromSpec(spec, cfg, cfg.EnabledMCPServers())
}

func fromSpec(spec config.AgentSpec, cfg *config.Config, enabled map[string]config.MCPServer) Config {
	name := spec.Name
	if name == "" {
		name = spec.ID
	}

	c := Config{
		ID:           spec.ID,
		Name:         name,
		Kind:         KindAgent,
		Role:         spec.Role,
		Instructions: spec.Instructions,
		Skills:       spec.Skills,
		Tools:        spec.Tools,
		Capabilities: capabilityRefs(spec.MCPServers, enabled),
		Model:        modelLabel(spec.Model, cfg),
		Temperature:  cfg.Temperature,
		Coordination: spec.Coordination,
	}

	if spec.IsTeam() {
		c.Kind = KindTeam
		c.Members = make([]Config, 0, len(spec.Members))
		for _, member := range spec.Members {
			c.Members = append(c.Members, fromSpec(member, cfg, enabled))
		}
	}
	return c
}

// RoutingMembers returns the routing view of the configured members.
func (c Config) RoutingMembers() []routing.Member {
	if len(c.Members) == 0 {
		return nil
	}
	members := make([]routing.Member, 0, len(c.Members))
	for _, m := range c.Members {
		members = append(members, routing.Member{ID: m.ID, Skills: m.Skills})
	}
	return members
}

// KeepMembers returns a copy of the config retaining only the members whose
// ids appear in keep, preserving roster order. A team whose member list
// empties out collapses to a direct agent: the coordinator answers alone.
func (c Config) KeepMembers(keep []string) Config {
	if c.Kind != KindTeam {
		return c
	}

	set := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		set[id] = struct{}{}
	}

	kept := make([]Config, 0, len(c.Members))
	for _, m := range c.Members {
		if _, ok := set[m.ID]; ok {
			kept = append(kept, m)
		}
	}

	out := c
	out.Members = kept
	if len(kept) == 0 {
		out.Kind = KindAgent
		out.Members = nil
	}
	return out
}

// capabilityRefs resolves MCP server names against the enabled declarations.
func capabilityRefs(names []string, enabled map[string]config.MCPServer) []capability.Ref {
	if len(names) == 0 || len(enabled) == 0 {
		return nil
	}

	refs := make([]capability.Ref, 0, len(names))
	for _, name := range names {
		server, ok := enabled[name]
		if !ok {
			continue
		}
		refs = append(refs, capability.Ref{
			Name:    name,
			Command: server.Command,
			Args:    server.Args,
			Env:     server.ResolvedEnv(),
			URL:     server.URL,
		})
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}

// modelLabel resolves the model for one roster entry: an explicit entry
// model wins over the global default, and unqualified names receive the
// provider prefix either way.
func modelLabel(model string, cfg *config.Config) string {
	if model == "" {
		return cfg.FullModelName()
	}
	return cfg.QualifyModel(model)
}
