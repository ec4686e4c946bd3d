package coordinator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dyluth/drey/pkg/agent"
	"github.com/dyluth/drey/pkg/blackboard"
)

// RunStatus is the lifecycle state of a run.
// Pending -> Running -> {AwaitingApproval <-> Running}* -> {Completed, Failed, Aborted}.
type RunStatus string

const (
	RunPending          RunStatus = "pending"
	RunRunning          RunStatus = "running"
	RunAwaitingApproval RunStatus = "awaiting_approval"
	RunCompleted        RunStatus = "completed"
	RunFailed           RunStatus = "failed"
	RunAborted          RunStatus = "aborted"
)

// Terminal reports whether the status accepts no further mutation.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunAborted
}

// run is the coordinator's internal tracking state for one run.
//
// mu serializes everything that touches the run or its board: stage
// execution (the driver goroutine holds mu for the whole stage), approvals,
// checkpoints and read accessors. Abort is the exception - it flips the
// abort flag and cancels the run context without the lock, so an in-flight
// parallel stage unwinds promptly instead of waiting for the driver.
type run struct {
	mu sync.Mutex

	id          string
	docID       string
	path        string
	policyRules map[string]string

	status        RunStatus
	awaitingStage string // gate stage name while status == RunAwaitingApproval

	createdAtMs   int64
	updatedAtMs   int64
	completedAtMs int64

	board      *blackboard.Blackboard
	task       agent.Task     // current task, carried across steps for pipeline chaining
	stageIndex int            // next unexecuted step
	lastStep   string         // most recently completed step (for multi-gate re-checks)
	results    []agent.Result // accumulated agent results
	failed     bool           // some step reported a team-level failure

	ctx    context.Context
	cancel context.CancelFunc
	abort  atomic.Bool
}

// RunInfo is the host-facing, plain-structured view of a run. All slices are
// copies: callers can hold or serialize it freely.
type RunInfo struct {
	ID            string                    `json:"id"`
	DocID         string                    `json:"doc_id"`
	Path          string                    `json:"path"`
	Status        RunStatus                 `json:"status"`
	Stage         string                    `json:"stage,omitempty"` // gate stage while awaiting approval
	Score         float64                   `json:"score"`
	History       []blackboard.HistoryEntry `json:"history"`
	AgentResults  []agent.Result            `json:"agent_results"`
	CreatedAtMs   int64                     `json:"created_at_ms"`
	UpdatedAtMs   int64                     `json:"updated_at_ms"`
	CompletedAtMs int64                     `json:"completed_at_ms,omitempty"`
}

// info builds a RunInfo snapshot. Caller must hold r.mu.
func (r *run) info() RunInfo {
	return RunInfo{
		ID:            r.id,
		DocID:         r.docID,
		Path:          r.path,
		Status:        r.status,
		Stage:         r.awaitingStage,
		Score:         Score(r.board),
		History:       append([]blackboard.HistoryEntry{}, r.board.History...),
		AgentResults:  append([]agent.Result{}, r.results...),
		CreatedAtMs:   r.createdAtMs,
		UpdatedAtMs:   r.updatedAtMs,
		CompletedAtMs: r.completedAtMs,
	}
}

// Score derives a review score from the board: the share of assessments
// that did not come back HIGH risk, weighted by clause coverage. A board
// with no assessments scores zero.
func Score(board *blackboard.Blackboard) float64 {
	if len(board.Assessments) == 0 {
		return 0
	}
	clear := 0
	for _, a := range board.Assessments {
		if a.Risk != blackboard.RiskHigh {
			clear++
		}
	}
	score := float64(clear) / float64(len(board.Assessments))
	if len(board.Clauses) > 0 {
		coverage := float64(len(board.Assessments)) / float64(len(board.Clauses))
		if coverage > 1 {
			coverage = 1
		}
		score *= coverage
	}
	return score
}
