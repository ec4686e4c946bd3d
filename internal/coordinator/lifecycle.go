package coordinator

import (
	"fmt"
	"time"

	"github.com/dyluth/drey/pkg/blackboard"
)

// drive executes stages of a run until it reaches a gate, a terminal state,
// or runs out of steps. Exactly one driver goroutine is active per run at a
// time: StartRun launches the first, and each approval launches the next
// after the previous one has exited at the gate.
//
// The run mutex is taken per iteration, not across the loop, so reads,
// checkpoints and aborts interleave between stages rather than queueing
// behind the whole run.
func (c *Coordinator) drive(r *run, p *registeredPath) {
	for c.step(r, p) {
	}
}

// step executes one iteration of the drive loop. Returns false when the
// driver should exit.
func (c *Coordinator) step(r *run, p *registeredPath) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != RunRunning {
		return false
	}
	if r.abort.Load() || r.ctx.Err() != nil {
		c.finalizeAborted(r)
		return false
	}

	// A step may carry several distinctly named gates; re-check before
	// advancing so resuming from one gate can immediately enter the next.
	if c.enterGateIfTriggered(r, p) {
		return false
	}

	if r.stageIndex >= len(p.steps) {
		c.finalize(r)
		return false
	}

	// The stage executes against a clone of the canonical board. The commit
	// below is the only point where stage output becomes visible, and it is
	// skipped entirely when the run was aborted mid-flight.
	step := p.steps[r.stageIndex]
	scratch := r.board.Clone()
	out := step.Run(r.ctx, r.task, scratch)

	if out.Aborted || r.abort.Load() || r.ctx.Err() != nil {
		c.finalizeAborted(r)
		return false
	}

	r.board = scratch
	r.results = append(r.results, out.Results...)
	r.task = out.NextTask
	r.lastStep = step.Name()
	r.stageIndex++
	r.updatedAtMs = time.Now().UnixMilli()
	if out.Failed {
		r.failed = true
	}

	r.board.Record(blackboard.EventStageCompleted, "", step.Name(), "")
	c.logEvent("stage_completed", map[string]interface{}{
		"run_id": r.id,
		"stage":  step.Name(),
		"failed": out.Failed,
	})
	c.emit(r, blackboard.EventStageCompleted, step.Name(), "")

	if out.Halt {
		c.finalize(r)
		return false
	}
	return true
}

// enterGateIfTriggered evaluates the gates bound to the most recently
// completed step. A gate whose stage already has a recorded approval is
// spent; the first unresolved gate whose predicate holds moves the run to
// AwaitingApproval and halts further stage execution. Caller holds r.mu.
func (c *Coordinator) enterGateIfTriggered(r *run, p *registeredPath) bool {
	if r.lastStep == "" {
		return false
	}
	for _, g := range p.gates {
		if g.After != r.lastStep {
			continue
		}
		if _, resolved := r.board.Approvals[g.Stage]; resolved {
			continue
		}
		when := g.When
		if when == nil {
			when = Always()
		}
		if !when(r.board) {
			continue
		}

		r.status = RunAwaitingApproval
		r.awaitingStage = g.Stage
		r.updatedAtMs = time.Now().UnixMilli()
		r.board.Record(blackboard.EventGateEntered, "", g.Stage, fmt.Sprintf("after step %s", g.After))

		c.logEvent("gate_entered", map[string]interface{}{
			"run_id": r.id,
			"stage":  g.Stage,
			"after":  g.After,
		})
		c.emit(r, blackboard.EventGateEntered, g.Stage, "")
		return true
	}
	return false
}

// finalize moves a run that has exhausted its steps (or halted on failure)
// to its terminal status. Caller holds r.mu.
func (c *Coordinator) finalize(r *run) {
	now := time.Now().UnixMilli()
	r.updatedAtMs = now
	r.completedAtMs = now

	if r.failed {
		r.status = RunFailed
		r.board.Record(blackboard.EventRunFailed, "", "", "")
		c.emit(r, blackboard.EventRunFailed, "", "")
	} else {
		r.status = RunCompleted
		r.board.Record(blackboard.EventRunCompleted, "", "", "")
		c.emit(r, blackboard.EventRunCompleted, "", "")
	}

	c.logEvent("run_finished", map[string]interface{}{
		"run_id": r.id,
		"status": string(r.status),
		"score":  Score(r.board),
	})
	r.cancel()
}

// finalizeAborted moves a live run to Aborted. In-flight agents were allowed
// to finish naturally, but nothing from the aborted stage was committed.
// Caller holds r.mu.
func (c *Coordinator) finalizeAborted(r *run) {
	if r.status.Terminal() {
		return
	}
	now := time.Now().UnixMilli()
	r.status = RunAborted
	r.awaitingStage = ""
	r.updatedAtMs = now
	r.completedAtMs = now
	r.board.Record(blackboard.EventRunAborted, "", "", "")

	c.logEvent("run_aborted", map[string]interface{}{
		"run_id": r.id,
	})
	c.emit(r, blackboard.EventRunAborted, "", "")
	r.cancel()
}
