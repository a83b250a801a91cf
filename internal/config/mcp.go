package config

// mcp.go declares external MCP (Model Context Protocol) tool servers.
//
// Servers are declared under mcp_servers in config.yaml and filtered through
// the global allowed/excluded lists (blacklist takes precedence). Env values
// support $VAR_NAME references resolved from the process environment at
// connect time, so secrets never live in the config file.
//
// There is no auto-detection: a server not declared here does not exist.

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// MCPConfig controls global MCP behavior.
type MCPConfig struct {
	Allowed  []string `mapstructure:"allowed" json:"allowed"`   // Servers to keep; empty keeps every declared server
	Excluded []string `mapstructure:"excluded" json:"excluded"` // Servers to drop, even when Allowed lists them
	Timeout  int      `mapstructure:"timeout" json:"timeout"`   // Seconds allowed for the per-turn connection phase (default: 15)
}

// MCPServer declares a single MCP server. Exactly one transport must be set:
// Command for a stdio subprocess, or URL for a streamable HTTP endpoint.
type MCPServer struct {
	Command string            `mapstructure:"command" json:"command"` // Executable path for stdio transport (e.g., "npx")
	Args    []string          `mapstructure:"args" json:"args"`       // Optional: command arguments
	Env     map[string]string `mapstructure:"env" json:"env"`         // Optional: environment variables - SECURITY: may contain API keys/tokens
	URL     string            `mapstructure:"url" json:"url"`         // Endpoint for streamable HTTP transport
}

// validate enforces the transport rule for one declared server.
func (m MCPServer) validate(name string) error {
	hasCommand := strings.TrimSpace(m.Command) != ""
	hasURL := strings.TrimSpace(m.URL) != ""
	switch {
	case hasCommand && hasURL:
		return fmt.Errorf("%w: %q declares both command and url, pick one transport", ErrInvalidMCPServer, name)
	case !hasCommand && !hasURL:
		return fmt.Errorf("%w: %q declares neither command nor url", ErrInvalidMCPServer, name)
	}
	return nil
}

// MarshalJSON implements json.Marshaler. Env values are masked
// wholesale; any of them may be a token.
func (m MCPServer) MarshalJSON() ([]byte, error) {
	type alias MCPServer
	a := alias(m)
	if a.Env != nil {
		maskedEnv := make(map[string]string, len(a.Env))
		for k, v := range a.Env {
			maskedEnv[k] = maskSecret(v)
		}
		a.Env = maskedEnv
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal mcp server: %w", err)
	}
	return data, nil
}

// ResolvedEnv returns the server's environment with $VAR_NAME values
// substituted from the process environment (Gemini CLI convention).
//
// Example:
//
//	declared: {"GITHUB_TOKEN": "$GH_PAT"}
//	resolved: {"GITHUB_TOKEN": "<value of $GH_PAT>"}
func (m MCPServer) ResolvedEnv() map[string]string {
	if m.Env == nil {
		return nil
	}

	resolved := make(map[string]string, len(m.Env))
	for key, value := range m.Env {
		if !strings.HasPrefix(value, "$") {
			// Plain literal, passed through untouched.
			resolved[key] = value
			continue
		}
		envName := strings.TrimPrefix(value, "$")
		envValue := os.Getenv(envName)
		if envValue == "" {
			slog.Warn("environment variable not set for MCP server",
				"env_var", envName,
				"mapped_to", key)
		}
		resolved[key] = envValue
	}
	return resolved
}

// EnabledMCPServers returns the declared servers that survive the
// excluded/allowed filters. The blacklist wins over the whitelist.
func (c *Config) EnabledMCPServers() map[string]MCPServer {
	if len(c.MCPServers) == 0 {
		return nil
	}

	excluded := make(map[string]bool, len(c.MCP.Excluded))
	for _, name := range c.MCP.Excluded {
		excluded[name] = true
	}

	var allowed map[string]bool
	if len(c.MCP.Allowed) > 0 {
		allowed = make(map[string]bool, len(c.MCP.Allowed))
		for _, name := range c.MCP.Allowed {
			allowed[name] = true
		}
	}

	enabled := make(map[string]MCPServer, len(c.MCPServers))
	for name, server := range c.MCPServers {
		if excluded[name] {
			slog.Debug("excluded MCP server", "server", name)
			continue
		}
		if allowed != nil && !allowed[name] {
			slog.Debug("filtered out MCP server (not in allowed list)", "server", name)
			continue
		}
		enabled[name] = server
	}
	return enabled
}
