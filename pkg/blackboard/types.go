package blackboard

import (
	"fmt"

	"github.com/google/uuid"
)

// RiskLevel classifies how dangerous a clause is considered to be.
// HIGH risk assessments are what trip the risk approval gate.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Validate checks if the RiskLevel is a valid enum value.
func (r RiskLevel) Validate() error {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return nil
	default:
		return fmt.Errorf("unknown risk level: %q", r)
	}
}

// Clause is a unit of document text extracted by a parsing agent.
// Clauses are immutable once written to the board.
type Clause struct {
	ID      string `json:"id"`      // UUID - unique identifier for this clause
	Index   int    `json:"index"`   // Position in the source document (starts at 1)
	Heading string `json:"heading"` // Optional heading or first words of the clause
	Text    string `json:"text"`    // Full clause text
}

// Validate checks if the Clause has valid field values.
func (c *Clause) Validate() error {
	if !isValidUUID(c.ID) {
		return fmt.Errorf("invalid clause ID: not a valid UUID")
	}
	if c.Index < 1 {
		return fmt.Errorf("invalid clause index: must be >= 1, got %d", c.Index)
	}
	if c.Text == "" {
		return fmt.Errorf("clause text cannot be empty")
	}
	return nil
}

// Assessment is an agent's risk judgement about a single clause.
type Assessment struct {
	ClauseID   string    `json:"clause_id"` // UUID of the assessed clause
	Risk       RiskLevel `json:"risk"`
	Rationale  string    `json:"rationale"`   // Why the agent assigned this risk level
	AssessedBy string    `json:"assessed_by"` // Agent name that produced the assessment
}

// Validate checks if the Assessment has valid field values.
func (a *Assessment) Validate() error {
	if !isValidUUID(a.ClauseID) {
		return fmt.Errorf("invalid assessment clause ID: not a valid UUID")
	}
	if err := a.Risk.Validate(); err != nil {
		return fmt.Errorf("invalid assessment: %w", err)
	}
	if a.AssessedBy == "" {
		return fmt.Errorf("assessment assessed_by cannot be empty")
	}
	return nil
}

// Proposal is a suggested redline for a clause: the original text plus a
// revised replacement and the reasoning behind it.
type Proposal struct {
	ID         string `json:"id"`        // UUID - unique identifier for this proposal
	ClauseID   string `json:"clause_id"` // UUID of the clause being revised
	Original   string `json:"original"`
	Revised    string `json:"revised"`
	Rationale  string `json:"rationale"`
	ProposedBy string `json:"proposed_by"` // Agent name that produced the proposal
}

// Validate checks if the Proposal has valid field values.
func (p *Proposal) Validate() error {
	if !isValidUUID(p.ID) {
		return fmt.Errorf("invalid proposal ID: not a valid UUID")
	}
	if !isValidUUID(p.ClauseID) {
		return fmt.Errorf("invalid proposal clause ID: not a valid UUID")
	}
	if p.Revised == "" {
		return fmt.Errorf("proposal revised text cannot be empty")
	}
	return nil
}

// SubtaskStatus defines the lifecycle state of a manager-worker subtask.
type SubtaskStatus string

const (
	SubtaskPending SubtaskStatus = "pending"
	SubtaskDone    SubtaskStatus = "done"
	SubtaskFailed  SubtaskStatus = "failed"
)

// Validate checks if the SubtaskStatus is a valid enum value.
func (s SubtaskStatus) Validate() error {
	switch s {
	case SubtaskPending, SubtaskDone, SubtaskFailed:
		return nil
	default:
		return fmt.Errorf("unknown subtask status: %q", s)
	}
}

// Subtask is a unit of work decomposed by a manager agent and claimed by a
// worker from the pool. Workers record the terminal status; the team merge
// writes it back to the board.
type Subtask struct {
	ID       string        `json:"id"`        // UUID - unique identifier for this subtask
	ClauseID string        `json:"clause_id"` // UUID of the clause this subtask covers (may be empty)
	Kind     string        `json:"kind"`      // Domain work type (e.g. "assess_clause")
	Payload  string        `json:"payload"`   // Input handed to the worker
	Status   SubtaskStatus `json:"status"`
	Error    string        `json:"error,omitempty"` // Failure detail when status=failed
}

// Validate checks if the Subtask has valid field values.
func (s *Subtask) Validate() error {
	if !isValidUUID(s.ID) {
		return fmt.Errorf("invalid subtask ID: not a valid UUID")
	}
	if s.Kind == "" {
		return fmt.Errorf("subtask kind cannot be empty")
	}
	if err := s.Status.Validate(); err != nil {
		return fmt.Errorf("invalid subtask: %w", err)
	}
	return nil
}

// HistoryEntry is one record in the append-only audit trail of a run.
// Entries are total-ordered within a run by Seq.
type HistoryEntry struct {
	Seq         int64  `json:"seq"`          // Monotonic sequence number (starts at 1)
	TimestampMs int64  `json:"timestamp_ms"` // Unix timestamp in milliseconds
	Event       string `json:"event"`        // Event type (see Event* constants)
	Agent       string `json:"agent,omitempty"` // Agent name, when the event concerns one
	Stage       string `json:"stage,omitempty"` // Stage or gate name, when relevant
	Detail      string `json:"detail,omitempty"`
}

// History event types. Every agent transition, gate entry/exit, approval
// decision and checkpoint is recorded so a run's outcome is explainable
// without re-execution.
const (
	EventAgentStarted       = "agent_started"
	EventAgentSucceeded     = "agent_succeeded"
	EventAgentFailed        = "agent_failed"
	EventStageCompleted     = "stage_completed"
	EventGateEntered        = "gate_entered"
	EventGateResolved       = "gate_resolved"
	EventCheckpointSaved    = "checkpoint_saved"
	EventCheckpointRestored = "checkpoint_restored"
	EventSubtaskTimeout     = "subtask_timeout"
	EventRunCompleted       = "run_completed"
	EventRunFailed          = "run_failed"
	EventRunAborted         = "run_aborted"
)

// Approval records the resolution of a HITL gate for one stage.
// A gate is resolved exactly once per stage occurrence.
type Approval struct {
	Stage        string   `json:"stage"`
	ApprovedIDs  []string `json:"approved_ids"`
	RejectedIDs  []string `json:"rejected_ids"`
	Notes        string   `json:"notes,omitempty"`
	ResolvedAtMs int64    `json:"resolved_at_ms"` // Unix timestamp in milliseconds
}

// Checkpoint is an immutable, timestamped snapshot of board state, captured
// for replay and debugging. The State is a deep copy: later mutation of the
// live board cannot retroactively corrupt it.
type Checkpoint struct {
	Step        string    `json:"step"`         // Caller-supplied label
	TimestampMs int64     `json:"timestamp_ms"` // Unix timestamp in milliseconds
	State       *Snapshot `json:"state"`
}

// Snapshot is the deep-copied mutable state of a Blackboard: everything
// except the append-only history and checkpoint slots.
type Snapshot struct {
	Clauses     []Clause            `json:"clauses"`
	Assessments []Assessment        `json:"assessments"`
	Proposals   []Proposal          `json:"proposals"`
	Subtasks    []Subtask           `json:"subtasks"`
	Approvals   map[string]Approval `json:"approvals"`
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
