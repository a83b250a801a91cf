// Package mcp implements the Model Context Protocol server that exposes
// the strand knowledge base to external clients.
//
// The server speaks MCP over any SDK transport (stdio in the CLI,
// in-memory in tests) and registers a single tool, search_knowledge,
// backed by the vector store. External assistants and other strand
// instances can query indexed documents without going through the HTTP
// API or the turn engine.
//
// Tool results follow the house convention: business failures travel as
// error results with a "[Code] Message" text body, successes as JSON.
// Transport and protocol errors are the SDK's concern.
package mcp
