package capability

import (
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/plugins/mcp"
)

// Ref names one external tool provider and how to reach it. Exactly one of
// Command (a local stdio server) or URL (a streamable HTTP endpoint) must
// be set.
type Ref struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	URL     string
}

// Key returns the provider identity the circuit breaker tracks. Refs with
// the same name, URL and command are the same provider wherever they are
// referenced.
func (r Ref) Key() string {
	return r.Name + "|" + r.URL + "|" + r.Command
}

// Validate checks that the ref describes a reachable provider.
func (r Ref) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("capability reference needs a name")
	}
	if r.Command == "" && r.URL == "" {
		return fmt.Errorf("capability %q needs a command or a URL", r.Name)
	}
	if r.Command != "" && r.URL != "" {
		return fmt.Errorf("capability %q cannot set both a command and a URL", r.Name)
	}
	return nil
}

// clientOptions converts the ref to MCP client options for the host.
func (r Ref) clientOptions() mcp.MCPClientOptions {
	opts := mcp.MCPClientOptions{Name: r.Name}
	if r.Command != "" {
		opts.Stdio = &mcp.StdioConfig{
			Command: r.Command,
			Args:    r.Args,
			Env:     envMapToSlice(r.Env),
		}
		return opts
	}
	opts.StreamableHTTP = &mcp.StreamableHTTPConfig{BaseURL: r.URL}
	return opts
}

// envMapToSlice converts an environment map to the KEY=VALUE slice format
// the stdio transport expects.
func envMapToSlice(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	result := make([]string, 0, len(m))
	for k, v := range m {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}
