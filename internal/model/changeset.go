package model

import "time"

// ChangeSetStatus enumerates the recorded outcome of a submission.
type ChangeSetStatus string

const (
	ChangeSetAccepted   ChangeSetStatus = "accepted"
	ChangeSetConflicted ChangeSetStatus = "conflicted"
	ChangeSetRejected   ChangeSetStatus = "rejected"
)

// OpResultStatus enumerates the per-op outcome within a change-set record.
type OpResultStatus string

const (
	OpAccepted   OpResultStatus = "accepted"
	OpConflicted OpResultStatus = "conflicted"
	OpRejected   OpResultStatus = "rejected"
	OpSkipped    OpResultStatus = "skipped"
)

// OpResult records the outcome of evaluating a single op within a change set.
type OpResult struct {
	OpID        string         `json:"op_id"`
	Status      OpResultStatus `json:"status"`
	Duplicate   bool           `json:"duplicate,omitempty"`
	ConflictIDs []string       `json:"conflict_ids,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// ChangeSet is the atomic submission unit of spec §3.
type ChangeSet struct {
	ID       string   `json:"id,omitempty"`
	State    string   `json:"state"`
	Metadata Metadata `json:"metadata,omitempty"`
	Ops      []Op     `json:"ops"`
}

// IdentityFields returns the map of fields hashed to derive the change
// set's id: state, metadata, and the identity fields of each op (not their
// own ids, which may not yet be assigned).
func (cs ChangeSet) IdentityFields() map[string]any {
	ops := make([]any, len(cs.Ops))
	for i, op := range cs.Ops {
		ops[i] = op.IdentityFields()
	}
	return map[string]any{
		"state":    cs.State,
		"metadata": metadataToAny(cs.Metadata),
		"ops":      ops,
	}
}

// ChangeSetRecord is the immutable audit row persisted for every
// submission, accepted or not.
type ChangeSetRecord struct {
	ID            string          `json:"id"`
	State         string          `json:"state"`
	Sequence      int64           `json:"sequence"`
	Status        ChangeSetStatus `json:"status"`
	Results       []OpResult      `json:"results"`
	AcceptedOpIDs []string        `json:"accepted_op_ids"`
	ConflictIDs   []string        `json:"conflict_ids"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Outcome is the response shape returned by Submit and Promote.
type Outcome struct {
	OK              bool              `json:"ok"`
	ChangeSetID     string            `json:"change_set_id"`
	Status          ChangeSetStatus   `json:"status"`
	Accepted        []string          `json:"accepted"`
	Conflicts       []string          `json:"conflicts"`
	ConflictDetails []Conflict        `json:"conflict_details,omitempty"`
	Results         []OpResult        `json:"results"`
	Duplicate       bool              `json:"duplicate,omitempty"`
}
