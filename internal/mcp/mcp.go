// Package mcp exposes Forge's engine through the Model Context Protocol,
// so MCP-compatible agent clients can submit change sets, inspect states,
// and resolve conflicts without going through the HTTP surface.
package mcp

import (
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/akashi/internal/engine"
)

// serverInstructions is sent to every MCP client during the initialize
// handshake, so an agent knows the submit/inspect/resolve workflow without
// per-project configuration.
const serverInstructions = `You have access to Forge, a semantic version-control engine.

WORKFLOW:

1. Call forge_list_states to see what states (branches) exist.
2. Call forge_submit_change_set with one or more ops to make an edit. Ops
   are evaluated against the target state's current tip; the whole change
   set is accepted or none of it is.
3. If forge_submit_change_set reports conflicts, call forge_list_conflicts
   to see the structured reason, then either submit a fixing op whose
   resolves field names the conflict id, or call forge_resolve_conflict
   to mark it resolved directly.
4. Call forge_promote to replay a state's accepted ops onto another state
   (e.g. promoting "dev" onto "main"). Promotion re-evaluates every op
   against the target, so it can itself produce new conflicts.

TOOLS:
- forge_list_states: list every known state and its current heads
- forge_get_state: fetch one state's details
- forge_submit_change_set: submit ops against a state
- forge_list_conflicts: list open (or all) conflicts for a state
- forge_resolve_conflict: mark a conflict resolved
- forge_promote: replay one state's ops onto another`

// Server wraps the MCP server with Forge's engine.
type Server struct {
	mcpServer *mcpserver.MCPServer
	engine    *engine.Engine
	logger    *slog.Logger
}

// New creates and configures a new MCP server with every Forge tool
// registered.
func New(eng *engine.Engine, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: eng, logger: logger}

	s.mcpServer = mcpserver.NewMCPServer(
		"forge",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func jsonResult(data any) *mcplib.CallToolResult {
	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(body)},
		},
	}
}
