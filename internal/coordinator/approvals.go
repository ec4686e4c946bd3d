package coordinator

import (
	"fmt"
	"strings"
	"time"

	"github.com/dyluth/drey/pkg/blackboard"
)

// ApproveRisk resolves the canonical risk_approval gate.
func (c *Coordinator) ApproveRisk(runID string, approved, rejected []string) error {
	return c.Approve(runID, StageRiskApproval, approved, rejected, "")
}

// ApproveFinal resolves the canonical final_approval gate.
func (c *Coordinator) ApproveFinal(runID string, approved, rejected []string, notes string) error {
	return c.Approve(runID, StageFinalApproval, approved, rejected, notes)
}

// Approve resolves the named gate stage: it records the decision on the
// board, transitions the run back to Running, and resumes execution from
// the next unexecuted stage. Completed stages are never re-executed.
//
// Returns ErrInvalidState unless the run is currently awaiting approval at
// exactly this stage; on error, no state is mutated.
func (c *Coordinator) Approve(runID, stage string, approved, rejected []string, notes string) error {
	r, err := c.lookup(runID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.Terminal() {
		return fmt.Errorf("%w: run %s is %s", ErrInvalidState, runID, r.status)
	}
	if r.status != RunAwaitingApproval || r.awaitingStage != stage {
		return fmt.Errorf("%w: run %s is not awaiting approval at stage %q (status=%s, stage=%q)",
			ErrInvalidState, runID, stage, r.status, r.awaitingStage)
	}

	now := time.Now().UnixMilli()
	r.board.SetApproval(blackboard.Approval{
		Stage:        stage,
		ApprovedIDs:  append([]string{}, approved...),
		RejectedIDs:  append([]string{}, rejected...),
		Notes:        notes,
		ResolvedAtMs: now,
	})
	r.board.Record(blackboard.EventGateResolved, "", stage,
		fmt.Sprintf("approved=[%s] rejected=[%s]", strings.Join(approved, ","), strings.Join(rejected, ",")))

	r.status = RunRunning
	r.awaitingStage = ""
	r.updatedAtMs = now

	c.logEvent("gate_resolved", map[string]interface{}{
		"run_id":   runID,
		"stage":    stage,
		"approved": len(approved),
		"rejected": len(rejected),
	})
	c.emit(r, blackboard.EventGateResolved, stage, "")

	go c.drive(r, c.pathFor(r))
	return nil
}

// Abort cancels a run. In-flight agents are allowed to finish naturally but
// their results are discarded and never merged; the run transitions to
// Aborted. Aborting an already-aborted run is a no-op; aborting a completed
// or failed run is ErrInvalidState.
func (c *Coordinator) Abort(runID string) error {
	r, err := c.lookup(runID)
	if err != nil {
		return err
	}

	// Flag and cancel before taking the lock so an executing stage starts
	// unwinding immediately instead of waiting out its join timeout.
	r.abort.Store(true)
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == RunAborted {
		return nil
	}
	if r.status.Terminal() {
		return fmt.Errorf("%w: run %s is %s", ErrInvalidState, runID, r.status)
	}
	c.finalizeAborted(r)
	return nil
}

// SaveCheckpoint appends a deep-copied snapshot of the run's board under the
// given step label. Returns the checkpoint index.
func (c *Coordinator) SaveCheckpoint(runID, step string) (int, error) {
	r, err := c.lookup(runID)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.Terminal() {
		return 0, fmt.Errorf("%w: run %s is %s", ErrInvalidState, runID, r.status)
	}

	idx := r.board.Checkpoint(step)
	r.board.Record(blackboard.EventCheckpointSaved, "", step, fmt.Sprintf("checkpoint %d", idx))
	r.updatedAtMs = time.Now().UnixMilli()
	c.emit(r, blackboard.EventCheckpointSaved, step, fmt.Sprintf("index %d", idx))
	return idx, nil
}

// RestoreCheckpoint replaces the live board state with the snapshot at the
// given index. Restore is for debugging and replay: it does not undo
// externally visible side effects agents may have triggered, and it never
// truncates the append-only history or checkpoint slots.
func (c *Coordinator) RestoreCheckpoint(runID string, index int) error {
	r, err := c.lookup(runID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.Terminal() {
		return fmt.Errorf("%w: run %s is %s", ErrInvalidState, runID, r.status)
	}
	if index < 0 || index >= len(r.board.Checkpoints) {
		return fmt.Errorf("checkpoint index %d out of range (run %s has %d checkpoints)",
			index, runID, len(r.board.Checkpoints))
	}

	cp := r.board.Checkpoints[index]
	r.board.Restore(cp.State)
	r.board.Record(blackboard.EventCheckpointRestored, "", cp.Step, fmt.Sprintf("checkpoint %d", index))
	r.updatedAtMs = time.Now().UnixMilli()
	c.emit(r, blackboard.EventCheckpointRestored, cp.Step, fmt.Sprintf("index %d", index))
	return nil
}
