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

// baseline captures slot lengths on the canonical board at launch time.
// Anything a scratch clone holds beyond the baseline is what the agent
// added, and is what the merge commits.
type baseline struct {
	clauses, assessments, proposals, subtasks int
}

func takeBaseline(board *blackboard.Blackboard) baseline {
	return baseline{
		clauses:     len(board.Clauses),
		assessments: len(board.Assessments),
		proposals:   len(board.Proposals),
		subtasks:    len(board.Subtasks),
	}
}

// commitAdditions appends everything the scratch clone accumulated beyond
// the baseline onto the canonical board. Callers serialize: this runs only
// from the single merge section of a parallel or manager-worker step.
func commitAdditions(board, scratch *blackboard.Blackboard, base baseline) {
	board.AddClauses(scratch.Clauses[base.clauses:]...)
	board.AddAssessments(scratch.Assessments[base.assessments:]...)
	board.AddProposals(scratch.Proposals[base.proposals:]...)
	board.AddSubtasks(scratch.Subtasks[base.subtasks:]...)
}

type parallelOutcome struct {
	agentName string
	res       agent.Result
	scratch   *blackboard.Blackboard
}

// runParallel launches every agent of the team concurrently against a
// private clone of the board, joins with a bounded timeout, and commits the
// scratch additions in a single serialized merge, sorted by agent name so
// identical inputs produce identical board content regardless of scheduling.
func (t *Team) runParallel(ctx context.Context, task agent.Task, board *blackboard.Blackboard) Outcome {
	if ctx.Err() != nil {
		return Outcome{NextTask: task, Aborted: true}
	}

	// Start events are appended serially, in declared order, before any
	// concurrent work begins.
	for _, a := range t.Agents {
		board.Record(blackboard.EventAgentStarted, a.Name(), "", "")
	}

	base := takeBaseline(board)
	results := make(chan parallelOutcome, len(t.Agents))
	for _, a := range t.Agents {
		scratch := board.Clone()
		go func(a agent.Agent, scratch *blackboard.Blackboard) {
			results <- parallelOutcome{
				agentName: a.Name(),
				res:       agent.Run(ctx, a, task, scratch),
				scratch:   scratch,
			}
		}(a, scratch)
	}

	// Bounded join: agents still running when the deadline fires are
	// recorded as failed. They finish naturally into the buffered channel
	// and their scratch boards are discarded unread.
	outcomes := make(map[string]parallelOutcome, len(t.Agents))
	deadline := time.NewTimer(t.Policy.JoinTimeout)
	defer deadline.Stop()
	aborted := false

collect:
	for len(outcomes) < len(t.Agents) {
		select {
		case out := <-results:
			outcomes[out.agentName] = out
		case <-deadline.C:
			log.Printf("[Team] Parallel join timeout for team %s after %v (%d/%d agents done)",
				t.Name, t.Policy.JoinTimeout, len(outcomes), len(t.Agents))
			break collect
		case <-ctx.Done():
			aborted = true
			break collect
		}
	}

	agentResults := make([]agent.Result, 0, len(t.Agents))
	failed := false

	// Single critical section: the merge commits additions in sorted agent
	// order, and only if the run is still live.
	if aborted || ctx.Err() != nil {
		for _, a := range t.Agents {
			if out, ok := outcomes[a.Name()]; ok {
				agentResults = append(agentResults, out.res)
			}
		}
		return Outcome{Results: agentResults, NextTask: task, Aborted: true}
	}

	names := make([]string, 0, len(t.Agents))
	for _, a := range t.Agents {
		names = append(names, a.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		out, ok := outcomes[name]
		if !ok {
			res := agent.Result{
				AgentName: name,
				Status:    agent.StatusFailed,
				Error:     fmt.Sprintf("parallel join timeout after %v", t.Policy.JoinTimeout),
			}
			board.Record(blackboard.EventAgentFailed, name, "", res.Error)
			agentResults = append(agentResults, res)
			failed = true
			continue
		}

		if out.res.Succeeded() {
			commitAdditions(board, out.scratch, base)
			board.Record(blackboard.EventAgentSucceeded, name, "", "")
		} else {
			board.Record(blackboard.EventAgentFailed, name, "", out.res.Error)
			failed = true
		}
		agentResults = append(agentResults, out.res)
	}

	return Outcome{Results: agentResults, NextTask: task, Failed: failed}
}
