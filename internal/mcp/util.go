package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/strand-ai/strand/internal/log"
	"github.com/strand-ai/strand/internal/tools"
)

// resultToMCP converts a tools.Result to the MCP wire shape. Error results
// become "[Code] Message" error content; their details stay server-side in
// the log so internals never leak to clients. Success data is marshaled to
// JSON for the client to parse.
func resultToMCP(result tools.Result, logger log.Logger) *mcp.CallToolResult {
	if result.Status == tools.StatusError && result.Error != nil {
		if result.Error.Details != nil {
			logger.Debug("tool error details withheld from client",
				"code", result.Error.Code, "details", result.Error.Details)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{
				Text: fmt.Sprintf("[%s] %s", result.Error.Code, result.Error.Message),
			}},
			IsError: true,
		}
	}
	return dataToMCP(result.Data, logger)
}

// dataToMCP marshals arbitrary payload data to JSON text content.
func dataToMCP(data any, logger log.Logger) *mcp.CallToolResult {
	if data == nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: ""}},
		}
	}

	b, err := json.Marshal(data)
	if err != nil {
		logger.Warn("marshaling tool result", "error", err)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "internal error encoding result"}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}
