package blackboard

import (
	"time"
)

// Blackboard is the shared mutable memory for one run. It holds the document
// clauses, the assessments and proposals agents have produced, the
// manager-worker subtask queue, the append-only history and checkpoint slots,
// and the gate approvals recorded so far.
//
// A Blackboard is exclusively owned by its run and is not safe for concurrent
// use; callers serialize access (see package doc).
type Blackboard struct {
	RunID       string              `json:"run_id"`
	Clauses     []Clause            `json:"clauses"`
	Assessments []Assessment        `json:"assessments"`
	Proposals   []Proposal          `json:"proposals"`
	Subtasks    []Subtask           `json:"subtasks"`
	History     []HistoryEntry      `json:"history"`     // append-only
	Checkpoints []Checkpoint        `json:"checkpoints"` // append-only
	Approvals   map[string]Approval `json:"approvals"`   // stage -> decision

	nextSeq int64
}

// New creates an empty Blackboard for the given run.
func New(runID string) *Blackboard {
	return &Blackboard{
		RunID:       runID,
		Clauses:     []Clause{},
		Assessments: []Assessment{},
		Proposals:   []Proposal{},
		Subtasks:    []Subtask{},
		History:     []HistoryEntry{},
		Checkpoints: []Checkpoint{},
		Approvals:   make(map[string]Approval),
		nextSeq:     1,
	}
}

// Record appends an entry to the history with the next sequence number and
// the current timestamp. History is append-only: entries are never mutated
// or removed, including across checkpoint restores.
func (b *Blackboard) Record(event, agent, stage, detail string) {
	b.History = append(b.History, HistoryEntry{
		Seq:         b.nextSeq,
		TimestampMs: time.Now().UnixMilli(),
		Event:       event,
		Agent:       agent,
		Stage:       stage,
		Detail:      detail,
	})
	b.nextSeq++
}

// AddClauses appends clauses to the board.
func (b *Blackboard) AddClauses(clauses ...Clause) {
	b.Clauses = append(b.Clauses, clauses...)
}

// AddAssessments appends assessments to the board.
func (b *Blackboard) AddAssessments(assessments ...Assessment) {
	b.Assessments = append(b.Assessments, assessments...)
}

// AddProposals appends proposals to the board.
func (b *Blackboard) AddProposals(proposals ...Proposal) {
	b.Proposals = append(b.Proposals, proposals...)
}

// AddSubtasks appends subtasks to the board.
func (b *Blackboard) AddSubtasks(subtasks ...Subtask) {
	b.Subtasks = append(b.Subtasks, subtasks...)
}

// ResolveSubtask marks the subtask with the given ID as done or failed.
// Unknown IDs are ignored.
func (b *Blackboard) ResolveSubtask(id string, status SubtaskStatus, errMsg string) {
	for i := range b.Subtasks {
		if b.Subtasks[i].ID == id {
			b.Subtasks[i].Status = status
			b.Subtasks[i].Error = errMsg
			return
		}
	}
}

// SetApproval records a gate decision for its stage.
func (b *Blackboard) SetApproval(a Approval) {
	b.Approvals[a.Stage] = a
}

// RiskIDs returns the clause IDs assessed at the given risk level, in
// assessment order.
func (b *Blackboard) RiskIDs(level RiskLevel) []string {
	var ids []string
	for _, a := range b.Assessments {
		if a.Risk == level {
			ids = append(ids, a.ClauseID)
		}
	}
	return ids
}

// ClauseByID returns the clause with the given ID, or nil if absent.
func (b *Blackboard) ClauseByID(id string) *Clause {
	for i := range b.Clauses {
		if b.Clauses[i].ID == id {
			return &b.Clauses[i]
		}
	}
	return nil
}

// Snapshot deep-copies the mutable state of the board (everything except the
// append-only history and checkpoint slots).
func (b *Blackboard) Snapshot() *Snapshot {
	return &Snapshot{
		Clauses:     append([]Clause{}, b.Clauses...),
		Assessments: append([]Assessment{}, b.Assessments...),
		Proposals:   append([]Proposal{}, b.Proposals...),
		Subtasks:    copySubtasks(b.Subtasks),
		Approvals:   copyApprovals(b.Approvals),
	}
}

// Restore replaces the mutable state of the board with a deep copy of the
// snapshot. History and checkpoints are preserved: a restore is itself an
// auditable event, not a rewrite of the past.
func (b *Blackboard) Restore(s *Snapshot) {
	b.Clauses = append([]Clause{}, s.Clauses...)
	b.Assessments = append([]Assessment{}, s.Assessments...)
	b.Proposals = append([]Proposal{}, s.Proposals...)
	b.Subtasks = copySubtasks(s.Subtasks)
	b.Approvals = copyApprovals(s.Approvals)
}

// Checkpoint captures a deep-copied snapshot under the given step label and
// appends it to the checkpoint slot. Returns the index of the new checkpoint.
func (b *Blackboard) Checkpoint(step string) int {
	b.Checkpoints = append(b.Checkpoints, Checkpoint{
		Step:        step,
		TimestampMs: time.Now().UnixMilli(),
		State:       b.Snapshot(),
	})
	return len(b.Checkpoints) - 1
}

// Clone deep-copies the whole board, including history and checkpoints.
// Teams hand clones to concurrently executing agents so that all writes land
// in private scratch space until the serialized merge.
func (b *Blackboard) Clone() *Blackboard {
	clone := &Blackboard{
		RunID:       b.RunID,
		Clauses:     append([]Clause{}, b.Clauses...),
		Assessments: append([]Assessment{}, b.Assessments...),
		Proposals:   append([]Proposal{}, b.Proposals...),
		Subtasks:    copySubtasks(b.Subtasks),
		History:     append([]HistoryEntry{}, b.History...),
		Approvals:   copyApprovals(b.Approvals),
		nextSeq:     b.nextSeq,
	}
	clone.Checkpoints = make([]Checkpoint, len(b.Checkpoints))
	for i, cp := range b.Checkpoints {
		clone.Checkpoints[i] = Checkpoint{
			Step:        cp.Step,
			TimestampMs: cp.TimestampMs,
			State: &Snapshot{
				Clauses:     append([]Clause{}, cp.State.Clauses...),
				Assessments: append([]Assessment{}, cp.State.Assessments...),
				Proposals:   append([]Proposal{}, cp.State.Proposals...),
				Subtasks:    copySubtasks(cp.State.Subtasks),
				Approvals:   copyApprovals(cp.State.Approvals),
			},
		}
	}
	return clone
}

func copySubtasks(in []Subtask) []Subtask {
	return append([]Subtask{}, in...)
}

func copyApprovals(in map[string]Approval) map[string]Approval {
	out := make(map[string]Approval, len(in))
	for stage, a := range in {
		cp := a
		cp.ApprovedIDs = append([]string{}, a.ApprovedIDs...)
		cp.RejectedIDs = append([]string{}, a.RejectedIDs...)
		out[stage] = cp
	}
	return out
}
