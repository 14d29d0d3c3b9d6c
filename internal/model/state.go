package model

import "time"

// Policy enumerates the per-state acceptance policy knobs of spec §3.
// RequiredChecks and RequiredHumanApprovals are declared but left inert by
// the classifier per the unresolved Open Question in spec §9 — Forge
// surfaces them for operator visibility (see SPEC_FULL.md §9) without
// enforcing them.
type Policy struct {
	AllowOpenConflicts     bool     `json:"allow_open_conflicts"`
	RequiredChecks         []string `json:"required_checks,omitempty"`
	RequiredHumanApprovals int      `json:"required_human_approvals,omitempty"`
}

// DefaultPolicy is the permissive policy new states other than "prod" get.
func DefaultPolicy() Policy {
	return Policy{AllowOpenConflicts: true}
}

// StrictPolicy is the policy "prod" gets when created.
func StrictPolicy() Policy {
	return Policy{AllowOpenConflicts: false}
}

// State is a named causal DAG head, per spec §3.
type State struct {
	Name      string    `json:"name"`
	BaseState string    `json:"base_state,omitempty"`
	BaseHeads []string  `json:"base_heads,omitempty"`
	Heads     []string  `json:"heads"`
	Policy    Policy    `json:"policy"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
