package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/akashi/internal/model"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("forge_list_states",
			mcplib.WithDescription("List every known state (branch) and its current heads."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleListStates,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("forge_get_state",
			mcplib.WithDescription("Fetch one state's details: its heads, base, and policy."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("state",
				mcplib.Description("Name of the state to fetch"),
				mcplib.Required(),
			),
		),
		s.handleGetState,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("forge_submit_change_set",
			mcplib.WithDescription(`Submit one or more ops as a single change set against a state.

The whole change set is accepted atomically or not at all: if any op
conflicts with the state's current tip, the entire submission is
rejected with structured conflict details and nothing is applied.

ops_json must be a JSON array of op objects, each shaped like:
{"target": {"symbol_id": "..."}, "writes": ["..."], "effect": {"kind": "upsert_file", "path": "...", "content": "...", "after_hash": "..."}}

See forge_list_conflicts for the conflict shape this tool can return.`),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("state",
				mcplib.Description("State to submit the change set against"),
				mcplib.Required(),
			),
			mcplib.WithString("ops_json",
				mcplib.Description("JSON array of op objects to submit"),
				mcplib.Required(),
			),
			mcplib.WithString("author",
				mcplib.Description("Optional author metadata to attach to every op"),
			),
			mcplib.WithString("intent",
				mcplib.Description("Optional free-text intent metadata to attach to every op"),
			),
		),
		s.handleSubmitChangeSet,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("forge_list_conflicts",
			mcplib.WithDescription("List conflicts recorded for a state, open ones by default."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("state",
				mcplib.Description("State to list conflicts for"),
				mcplib.Required(),
			),
			mcplib.WithString("include_resolved",
				mcplib.Description(`Set to "true" to include already-resolved conflicts; defaults to open-only`),
			),
		),
		s.handleListConflicts,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("forge_resolve_conflict",
			mcplib.WithDescription("Mark a conflict resolved without submitting a fixing op."),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("conflict_id",
				mcplib.Description("ID of the conflict to resolve"),
				mcplib.Required(),
			),
			mcplib.WithString("resolved_by",
				mcplib.Description("Who or what resolved the conflict"),
			),
		),
		s.handleResolveConflict,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("forge_promote",
			mcplib.WithDescription(`Replay a source state's accepted ops onto a target state.

Promotion re-evaluates every named op against the target state's
current tip, so it can itself produce new conflicts if the target
has diverged since the ops were accepted on the source.`),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("source_state",
				mcplib.Description("State whose ops are being promoted"),
				mcplib.Required(),
			),
			mcplib.WithString("target_state",
				mcplib.Description("State to promote onto"),
				mcplib.Required(),
			),
			mcplib.WithString("op_ids_json",
				mcplib.Description("JSON array of op IDs from source_state to promote"),
				mcplib.Required(),
			),
		),
		s.handlePromote,
	)
}

func (s *Server) handleListStates(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return jsonResult(s.engine.ListStates()), nil
}

func (s *Server) handleGetState(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	name := request.GetString("state", "")
	if name == "" {
		return errorResult("state is required"), nil
	}
	st, ok := s.engine.GetState(name)
	if !ok {
		return errorResult(fmt.Sprintf("state %q not found", name)), nil
	}
	return jsonResult(st), nil
}

func (s *Server) handleSubmitChangeSet(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	state := request.GetString("state", "")
	if state == "" {
		return errorResult("state is required"), nil
	}
	opsJSON := request.GetString("ops_json", "")
	if opsJSON == "" {
		return errorResult("ops_json is required"), nil
	}
	author := request.GetString("author", "")
	intent := request.GetString("intent", "")

	var ops []model.Op
	if err := json.Unmarshal([]byte(opsJSON), &ops); err != nil {
		return errorResult("ops_json is not a valid JSON array of ops: " + err.Error()), nil
	}
	for i := range ops {
		ops[i].State = state
		if author != "" {
			ops[i].Metadata.Author = author
		}
		if intent != "" {
			ops[i].Metadata.Intent = intent
		}
	}

	cs := model.ChangeSet{State: state, Ops: ops}
	outcome, err := s.engine.Submit(cs)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(outcome), nil
}

func (s *Server) handleListConflicts(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	state := request.GetString("state", "")
	if state == "" {
		return errorResult("state is required"), nil
	}
	if _, ok := s.engine.GetState(state); !ok {
		return errorResult(fmt.Sprintf("state %q not found", state)), nil
	}
	openOnly := request.GetString("include_resolved", "") != "true"
	conflicts := s.engine.ListConflicts(state, openOnly)

	compacted := make([]map[string]any, 0, len(conflicts))
	for _, c := range conflicts {
		compacted = append(compacted, compactConflict(c))
	}
	return jsonResult(compacted), nil
}

func (s *Server) handleResolveConflict(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	conflictID := request.GetString("conflict_id", "")
	if conflictID == "" {
		return errorResult("conflict_id is required"), nil
	}
	resolvedBy := request.GetString("resolved_by", "mcp-agent")

	conflict, err := s.engine.ResolveConflict(conflictID, resolvedBy)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(conflict), nil
}

func (s *Server) handlePromote(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	source := request.GetString("source_state", "")
	target := request.GetString("target_state", "")
	opIDsJSON := request.GetString("op_ids_json", "")
	if source == "" || target == "" || opIDsJSON == "" {
		return errorResult("source_state, target_state, and op_ids_json are all required"), nil
	}

	var opIDs []string
	if err := json.Unmarshal([]byte(opIDsJSON), &opIDs); err != nil {
		return errorResult("op_ids_json is not a valid JSON array of strings: " + err.Error()), nil
	}

	outcome, err := s.engine.Promote(source, target, opIDs)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(outcome), nil
}
