package mcp

import "github.com/ashita-ai/akashi/internal/model"

// maxCompactReason bounds how much of a conflict's reason text is surfaced
// to an MCP client, so a long classifier explanation doesn't dominate a
// tool response alongside several other conflicts.
const maxCompactReason = 240

// compactConflict strips a conflict down to the fields an agent needs to
// decide how to react: what it is, what it's about, and whether it's
// still open.
func compactConflict(c model.Conflict) map[string]any {
	out := map[string]any{
		"id":     c.ID,
		"state":  c.State,
		"type":   c.Type,
		"status": c.Status,
		"ops":    c.Ops,
		"reason": truncate(c.Reason, maxCompactReason),
	}
	if c.Target != "" {
		out["target"] = c.Target
	}
	if c.Status == model.ConflictResolved {
		out["resolved_by"] = c.ResolvedBy
		out["resolved_at"] = c.ResolvedAt
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
