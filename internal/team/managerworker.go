package team

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/dyluth/drey/pkg/agent"
	"github.com/dyluth/drey/pkg/blackboard"
)

type subtaskOutcome struct {
	subtaskID string
	agentName string
	res       agent.Result
	scratch   *blackboard.Blackboard
	timedOut  bool
}

// runManagerWorker executes the manager (first agent) serially against the
// canonical board, then drains the subtask queue it produced through the
// worker pool (the remaining agents), each subtask on a private clone with a
// per-subtask deadline. The join ends when every subtask is resolved or the
// join timeout fires; the merge commits worker additions sorted by subtask
// ID so the result is independent of worker-to-subtask assignment order.
func (t *Team) runManagerWorker(ctx context.Context, task agent.Task, board *blackboard.Blackboard) Outcome {
	if ctx.Err() != nil {
		return Outcome{NextTask: task, Aborted: true}
	}

	manager := t.Agents[0]
	workers := t.Agents[1:]

	base := takeBaseline(board)
	board.Record(blackboard.EventAgentStarted, manager.Name(), "", "")
	managerRes := agent.Run(ctx, manager, task, board)

	if ctx.Err() != nil {
		return Outcome{Results: []agent.Result{managerRes}, NextTask: task, Aborted: true}
	}

	if !managerRes.Succeeded() {
		board.Record(blackboard.EventAgentFailed, manager.Name(), "", managerRes.Error)
		return Outcome{Results: []agent.Result{managerRes}, NextTask: task, Failed: true, Halt: true}
	}
	board.Record(blackboard.EventAgentSucceeded, manager.Name(), "", "")

	// The manager's decomposition is whatever it appended to the subtask
	// slot. Nothing to do is a legitimate (empty) outcome.
	pending := board.Subtasks[base.subtasks:]
	if len(pending) == 0 {
		return Outcome{Results: []agent.Result{managerRes}, NextTask: task}
	}

	queue := make(chan blackboard.Subtask, len(pending))
	for _, st := range pending {
		queue <- st
	}
	close(queue)

	// Workers never touch the canonical board: they clone from a frozen copy
	// taken here, so for the rest of the step the merge below is the board's
	// only writer even when a straggler outlives the join. The join context
	// stops stragglers from claiming further subtasks once the join ends.
	frozen := board.Clone()
	frozenBase := takeBaseline(frozen)

	joinCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	results := make(chan subtaskOutcome, len(pending))
	for _, w := range workers {
		go t.drainSubtasks(joinCtx, w, task, frozen, queue, results)
	}

	// Join barrier: queue-empty-or-timeout, never ad hoc polling.
	outcomes := make(map[string]subtaskOutcome, len(pending))
	deadline := time.NewTimer(t.Policy.JoinTimeout)
	defer deadline.Stop()
	aborted := false

collect:
	for len(outcomes) < len(pending) {
		select {
		case out := <-results:
			outcomes[out.subtaskID] = out
		case <-deadline.C:
			log.Printf("[Team] Manager-worker join timeout for team %s after %v (%d/%d subtasks resolved)",
				t.Name, t.Policy.JoinTimeout, len(outcomes), len(pending))
			break collect
		case <-ctx.Done():
			aborted = true
			break collect
		}
	}
	stopWorkers()

	agentResults := []agent.Result{managerRes}

	if aborted || ctx.Err() != nil {
		for _, st := range pending {
			if out, ok := outcomes[st.ID]; ok {
				agentResults = append(agentResults, out.res)
			}
		}
		return Outcome{Results: agentResults, NextTask: task, Aborted: true}
	}

	// Deterministic serialized merge, sorted by subtask ID. Timed-out and
	// unresolved subtasks are recorded as failed and excluded.
	ids := make([]string, 0, len(pending))
	for _, st := range pending {
		ids = append(ids, st.ID)
	}
	sort.Strings(ids)

	failedCount := 0
	for _, id := range ids {
		out, ok := outcomes[id]
		if !ok {
			board.ResolveSubtask(id, blackboard.SubtaskFailed,
				fmt.Sprintf("unresolved at join timeout (%v)", t.Policy.JoinTimeout))
			board.Record(blackboard.EventSubtaskTimeout, "", "", fmt.Sprintf("subtask %s", id))
			failedCount++
			continue
		}

		agentResults = append(agentResults, out.res)
		switch {
		case out.timedOut:
			board.ResolveSubtask(id, blackboard.SubtaskFailed, out.res.Error)
			board.Record(blackboard.EventSubtaskTimeout, out.agentName, "", fmt.Sprintf("subtask %s", id))
			failedCount++
		case out.res.Succeeded():
			commitAdditions(board, out.scratch, frozenBase)
			board.ResolveSubtask(id, blackboard.SubtaskDone, "")
			board.Record(blackboard.EventAgentSucceeded, out.agentName, "", fmt.Sprintf("subtask %s", id))
		default:
			board.ResolveSubtask(id, blackboard.SubtaskFailed, out.res.Error)
			board.Record(blackboard.EventAgentFailed, out.agentName, "", fmt.Sprintf("subtask %s: %s", id, out.res.Error))
			failedCount++
		}
	}

	// Failed subtasks reduce coverage rather than failing the team, unless
	// the policy says otherwise or nothing at all succeeded.
	failed := failedCount == len(pending) || (t.Policy.FailOnSubtaskFailure && failedCount > 0)

	return Outcome{Results: agentResults, NextTask: task, Failed: failed}
}

// drainSubtasks is one worker of the pool: it claims subtasks off the shared
// queue until the queue is empty or the join is over. Every subtask runs
// against a fresh clone of the frozen board under a per-subtask deadline; a
// deadline overrun releases the worker immediately while the stray agent
// call finishes against its discarded clone.
func (t *Team) drainSubtasks(ctx context.Context, w agent.Agent, task agent.Task,
	frozen *blackboard.Blackboard, queue <-chan blackboard.Subtask, results chan<- subtaskOutcome) {

	for st := range queue {
		if ctx.Err() != nil {
			return
		}

		subTask := agent.Task{
			DocID:       st.ClauseID,
			Content:     st.Payload,
			PolicyRules: task.PolicyRules,
		}
		if subTask.DocID == "" {
			subTask.DocID = st.ID
		}

		scratch := frozen.Clone()

		done := make(chan agent.Result, 1)
		go func() {
			done <- agent.Run(ctx, w, subTask, scratch)
		}()

		timer := time.NewTimer(t.Policy.SubtaskTimeout)
		select {
		case res := <-done:
			timer.Stop()
			results <- subtaskOutcome{
				subtaskID: st.ID,
				agentName: w.Name(),
				res:       res,
				scratch:   scratch,
			}
		case <-timer.C:
			results <- subtaskOutcome{
				subtaskID: st.ID,
				agentName: w.Name(),
				res: agent.Result{
					AgentName: w.Name(),
					Status:    agent.StatusFailed,
					Error:     fmt.Sprintf("subtask timeout after %v", t.Policy.SubtaskTimeout),
				},
				timedOut: true,
			}
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}
