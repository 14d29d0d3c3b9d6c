package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/akashi/internal/adapter"
	"github.com/ashita-ai/akashi/internal/engine"
	"github.com/ashita-ai/akashi/internal/hash"
	"github.com/ashita-ai/akashi/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer() *Server {
	eng := engine.New(adapter.NewRegistry(nil), discardLogger())
	return New(eng, discardLogger(), "test")
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestHandleListStatesIncludesDefault(t *testing.T) {
	s := newTestServer()
	result, err := s.handleListStates(context.Background(), toolRequest("forge_list_states", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var states []map[string]any
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &states))
	require.Len(t, states, 1)
	require.Equal(t, "main", states[0]["name"])
}

func TestHandleGetStateNotFound(t *testing.T) {
	s := newTestServer()
	result, err := s.handleGetState(context.Background(), toolRequest("forge_get_state", map[string]any{
		"state": "missing",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestHandleSubmitChangeSetAndListConflicts(t *testing.T) {
	s := newTestServer()
	ctx := context.Background()

	symID := model.SymbolID(model.ExtensionAdapter("notes.md"), "notes.md", model.DocumentFragment)
	opsJSON, err := json.Marshal([]map[string]any{
		{
			"target": map[string]any{"symbol_id": symID},
			"writes": []string{symID},
			"effect": map[string]any{
				"kind":       "upsert_file",
				"path":       "notes.md",
				"content":    "hello",
				"after_hash": hash.String("hello"),
			},
		},
	})
	require.NoError(t, err)

	result, err := s.handleSubmitChangeSet(ctx, toolRequest("forge_submit_change_set", map[string]any{
		"state":    "main",
		"ops_json": string(opsJSON),
		"author":   "agent-1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "submit should succeed: %s", parseToolText(t, result))

	var outcome struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &outcome))
	require.Equal(t, "accepted", outcome.Status)

	conflictsResult, err := s.handleListConflicts(ctx, toolRequest("forge_list_conflicts", map[string]any{
		"state": "main",
	}))
	require.NoError(t, err)
	require.False(t, conflictsResult.IsError)

	var conflicts []map[string]any
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, conflictsResult)), &conflicts))
	require.Empty(t, conflicts)
}

func TestHandleSubmitChangeSetInvalidOpsJSON(t *testing.T) {
	s := newTestServer()
	result, err := s.handleSubmitChangeSet(context.Background(), toolRequest("forge_submit_change_set", map[string]any{
		"state":    "main",
		"ops_json": "not json",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestHandlePromoteUnknownState(t *testing.T) {
	s := newTestServer()
	result, err := s.handlePromote(context.Background(), toolRequest("forge_promote", map[string]any{
		"source_state": "dev",
		"target_state": "main",
		"op_ids_json":  "[]",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestHandleResolveConflictUnknown(t *testing.T) {
	s := newTestServer()
	result, err := s.handleResolveConflict(context.Background(), toolRequest("forge_resolve_conflict", map[string]any{
		"conflict_id": "c-does-not-exist",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
}
