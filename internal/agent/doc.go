// Package agent resolves roster declarations into runnable handles and
// adapts genkit generation to the raw event stream the reconciler consumes.
//
// The package covers four concerns:
//
//   - Config and FromSpec translate declarative roster entries
//     (config.AgentSpec) into runtime descriptions with MCP server names
//     resolved to capability references.
//   - Factory builds per-turn Handles: model label, instructions, builtin
//     tools and a fresh MCP host whose connections live exactly one turn.
//   - Runner streams a handle run as labeled raw events: member-scoped
//     events for each delegated member, team-scoped events for the
//     coordinator pass, tool-call events for builtin and MCP invocations.
//   - Generator is the non-streaming fallback used when a streamed run
//     produces nothing usable.
package agent
