package config

// agents.go declares the agent roster: which agents and teams exist, what
// tools and MCP servers they may use, and how a team coordinates its members.

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Coordination modes for team agents. An empty mode delegates to all members;
// unknown modes are tolerated at load time and also fail open to all members
// at turn time.
const (
	CoordinationDirectOnly           = "direct_only"
	CoordinationAlwaysDelegate       = "always_delegate"
	CoordinationDelegateOnComplexity = "delegate_on_complexity"
	CoordinationCoordinatedRAG       = "coordinated_rag"
)

// knownCoordinationModes lists the modes the router understands.
var knownCoordinationModes = []string{
	CoordinationDirectOnly,
	CoordinationAlwaysDelegate,
	CoordinationDelegateOnComplexity,
	CoordinationCoordinatedRAG,
}

// AgentSpec declares one agent in the roster. A spec with Members is a team:
// the top-level entry coordinates, the members answer delegated work.
type AgentSpec struct {
	ID           string      `mapstructure:"id" json:"id"`
	Name         string      `mapstructure:"name" json:"name"`
	Role         string      `mapstructure:"role" json:"role"`
	Instructions string      `mapstructure:"instructions" json:"instructions"`
	Skills       []string    `mapstructure:"skills" json:"skills"`           // keywords matched against the prompt for delegate_on_complexity
	Tools        []string    `mapstructure:"tools" json:"tools"`             // builtin tool names (see internal/tools)
	MCPServers   []string    `mapstructure:"mcp_servers" json:"mcp_servers"` // names into Config.MCPServers
	Model        string      `mapstructure:"model" json:"model"`             // overrides the global model when set
	Coordination string      `mapstructure:"coordination" json:"coordination"`
	Members      []AgentSpec `mapstructure:"members" json:"members"`
}

// IsTeam reports whether the spec declares a coordinating team.
func (a AgentSpec) IsTeam() bool {
	return len(a.Members) > 0
}

// AgentByID returns the roster entry with the given id.
func (c *Config) AgentByID(id string) (AgentSpec, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentSpec{}, false
}

// DefaultAgentSpec returns the agent a session starts with: the configured
// default_agent, the first roster entry when no default is named, or a
// minimal general-purpose spec when the roster is empty.
func (c *Config) DefaultAgentSpec() AgentSpec {
	if c.DefaultAgent != "" {
		if a, ok := c.AgentByID(c.DefaultAgent); ok {
			return a
		}
	}
	if len(c.Agents) > 0 {
		return c.Agents[0]
	}
	return AgentSpec{ID: "assistant", Name: "Assistant"}
}

// validateAgents checks the roster for structural problems: missing or
// duplicate ids, nested teams, and references to undeclared MCP servers.
// Unknown coordination modes only warn; routing fails open on them.
func (c *Config) validateAgents() error {
	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("%w: agents[%d] is missing an id", ErrInvalidAgentSpec, i)
		}
		if seen[a.ID] {
			return fmt.Errorf("%w: duplicate agent id %q", ErrInvalidAgentSpec, a.ID)
		}
		seen[a.ID] = true

		if err := c.validateMCPRefs("agent "+a.ID, a.MCPServers); err != nil {
			return err
		}

		if a.Coordination != "" && !slices.Contains(knownCoordinationModes, a.Coordination) {
			slog.Warn("unknown coordination mode, teams will delegate to all members",
				"agent", a.ID,
				"mode", a.Coordination)
		}

		memberIDs := make(map[string]bool, len(a.Members))
		for _, m := range a.Members {
			if strings.TrimSpace(m.ID) == "" {
				return fmt.Errorf("%w: team %q has a member without an id", ErrInvalidAgentSpec, a.ID)
			}
			if memberIDs[m.ID] {
				return fmt.Errorf("%w: team %q has duplicate member id %q", ErrInvalidAgentSpec, a.ID, m.ID)
			}
			memberIDs[m.ID] = true
			if len(m.Members) > 0 {
				return fmt.Errorf("%w: team %q: nested teams are not supported (member %q)", ErrInvalidAgentSpec, a.ID, m.ID)
			}
			if err := c.validateMCPRefs(fmt.Sprintf("team %q member %q", a.ID, m.ID), m.MCPServers); err != nil {
				return err
			}
		}
	}

	if c.DefaultAgent != "" && !seen[c.DefaultAgent] {
		return fmt.Errorf("%w: default_agent %q is not in the roster", ErrInvalidAgentSpec, c.DefaultAgent)
	}
	return nil
}

// validateMCPRefs checks that every referenced MCP server is declared.
func (c *Config) validateMCPRefs(owner string, refs []string) error {
	for _, name := range refs {
		if _, ok := c.MCPServers[name]; !ok {
			return fmt.Errorf("%w: %s references undeclared MCP server %q", ErrInvalidAgentSpec, owner, name)
		}
	}
	return nil
}
