// Package team implements the four execution topologies a drey team can be
// bound to: sequential, pipeline, parallel and manager-worker.
//
// A team decomposes into ordered steps. Sequential and pipeline teams expose
// one step per agent so the coordinator can interleave approval gates between
// agents; parallel and manager-worker teams are a single step that joins all
// concurrent work before returning. Concurrent agents never touch the
// canonical board: they run against private clones and the team commits the
// additions in one deterministic, serialized merge.
package team

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/drey/pkg/agent"
	"github.com/dyluth/drey/pkg/blackboard"
)

// Pattern is the execution topology a team is bound to.
type Pattern string

const (
	PatternSequential    Pattern = "sequential"
	PatternPipeline      Pattern = "pipeline"
	PatternParallel      Pattern = "parallel"
	PatternManagerWorker Pattern = "manager_worker"
)

// Validate checks if the Pattern is a valid enum value.
func (p Pattern) Validate() error {
	switch p {
	case PatternSequential, PatternPipeline, PatternParallel, PatternManagerWorker:
		return nil
	default:
		return fmt.Errorf("unknown team pattern: %q", p)
	}
}

// Policy holds the configurable execution knobs of a team. Retry policy is
// deliberately absent: retries belong to agent implementations, not the
// engine.
type Policy struct {
	// ContinueOnError keeps a sequential/pipeline team running past a
	// failed agent, recording all results. Default is stop on first failure.
	ContinueOnError bool

	// JoinTimeout bounds how long a parallel or manager-worker step waits
	// for its concurrent agents before recording stragglers as failed.
	JoinTimeout time.Duration

	// SubtaskTimeout bounds a single manager-worker subtask execution.
	SubtaskTimeout time.Duration

	// FailOnSubtaskFailure makes any failed subtask fail the whole team.
	// Default: failed subtasks only reduce coverage.
	FailOnSubtaskFailure bool
}

// DefaultPolicy returns the policy applied when the config leaves one out.
func DefaultPolicy() Policy {
	return Policy{
		JoinTimeout:    30 * time.Second,
		SubtaskTimeout: 10 * time.Second,
	}
}

// Team is a named, ordered collection of agents bound to one execution
// pattern. Teams are created at registration time and are read-only during
// execution.
type Team struct {
	Name    string
	Pattern Pattern
	Agents  []agent.Agent
	Policy  Policy
}

// New builds and validates a team. Manager-worker teams need at least two
// agents (the first is the manager, the rest are the worker pool); every
// pattern needs at least one, and agent names must be unique within a team.
func New(name string, pattern Pattern, policy Policy, agents ...agent.Agent) (*Team, error) {
	if name == "" {
		return nil, fmt.Errorf("team name cannot be empty")
	}
	if err := pattern.Validate(); err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("team %q: at least one agent is required", name)
	}
	if pattern == PatternManagerWorker && len(agents) < 2 {
		return nil, fmt.Errorf("team %q: manager_worker requires a manager and at least one worker", name)
	}
	seen := make(map[string]bool, len(agents))
	for _, a := range agents {
		if a.Name() == "" {
			return nil, fmt.Errorf("team %q: agent name cannot be empty", name)
		}
		if seen[a.Name()] {
			return nil, fmt.Errorf("team %q: duplicate agent name %q", name, a.Name())
		}
		seen[a.Name()] = true
	}
	if policy.JoinTimeout <= 0 {
		policy.JoinTimeout = DefaultPolicy().JoinTimeout
	}
	if policy.SubtaskTimeout <= 0 {
		policy.SubtaskTimeout = DefaultPolicy().SubtaskTimeout
	}
	return &Team{Name: name, Pattern: pattern, Agents: agents, Policy: policy}, nil
}

// Result aggregates the outcome of one team execution.
type Result struct {
	Team         string         `json:"team"`
	Pattern      Pattern        `json:"pattern"`
	AgentResults []agent.Result `json:"agent_results"`
	Success      bool           `json:"success"`
}

// Outcome is what a single step reports back to its driver.
type Outcome struct {
	Results  []agent.Result
	NextTask agent.Task // task for the following step (pipeline chaining)
	Failed   bool       // this step renders the team failed
	Halt     bool       // stop executing subsequent steps
	Aborted  bool       // context cancelled before commit; nothing was merged
}

// Step is one logical stage of a team: a named unit the coordinator can
// execute and gate on independently.
type Step struct {
	name string
	run  func(ctx context.Context, task agent.Task, board *blackboard.Blackboard) Outcome
}

// Name returns the step name (the agent name for sequential/pipeline steps,
// the team name for parallel and manager-worker).
func (s Step) Name() string { return s.name }

// Run executes the step against the canonical board.
func (s Step) Run(ctx context.Context, task agent.Task, board *blackboard.Blackboard) Outcome {
	return s.run(ctx, task, board)
}

// Steps decomposes the team into its ordered logical stages.
func (t *Team) Steps() []Step {
	switch t.Pattern {
	case PatternSequential:
		steps := make([]Step, len(t.Agents))
		for i, a := range t.Agents {
			steps[i] = t.serialStep(a, false)
		}
		return steps
	case PatternPipeline:
		steps := make([]Step, len(t.Agents))
		for i, a := range t.Agents {
			steps[i] = t.serialStep(a, true)
		}
		return steps
	case PatternParallel:
		return []Step{{name: t.Name, run: t.runParallel}}
	case PatternManagerWorker:
		return []Step{{name: t.Name, run: t.runManagerWorker}}
	}
	return nil
}

// Execute drives all steps of the team in order against the given board.
// This is the standalone entry point; the coordinator drives Steps()
// directly so it can evaluate gates between them.
func (t *Team) Execute(ctx context.Context, task agent.Task, board *blackboard.Blackboard) Result {
	res := Result{Team: t.Name, Pattern: t.Pattern, Success: true}
	for _, step := range t.Steps() {
		out := step.Run(ctx, task, board)
		res.AgentResults = append(res.AgentResults, out.Results...)
		if out.Failed || out.Aborted {
			res.Success = false
		}
		if out.Halt || out.Aborted {
			break
		}
		task = out.NextTask
	}
	return res
}

// serialStep wraps one agent of a sequential or pipeline team. The board
// from agent i is visible to agent i+1; a pipeline step additionally chains
// the agent's primary output into the next task.
func (t *Team) serialStep(a agent.Agent, chain bool) Step {
	return Step{
		name: a.Name(),
		run: func(ctx context.Context, task agent.Task, board *blackboard.Blackboard) Outcome {
			if ctx.Err() != nil {
				return Outcome{NextTask: task, Aborted: true}
			}

			board.Record(blackboard.EventAgentStarted, a.Name(), "", "")
			res := agent.Run(ctx, a, task, board)

			if ctx.Err() != nil {
				// Aborted while the agent was in flight. The agent wrote
				// directly to the board (serial execution is single-writer),
				// but the coordinator discards the run before anything
				// becomes observable.
				return Outcome{Results: []agent.Result{res}, NextTask: task, Aborted: true}
			}

			next := task
			if res.Succeeded() {
				board.Record(blackboard.EventAgentSucceeded, a.Name(), "", "")
				if chain {
					if out, ok := res.PrimaryOutput(); ok {
						next.Content = out
					}
				}
				return Outcome{Results: []agent.Result{res}, NextTask: next}
			}

			board.Record(blackboard.EventAgentFailed, a.Name(), "", res.Error)
			return Outcome{
				Results:  []agent.Result{res},
				NextTask: next,
				Failed:   true,
				Halt:     !t.Policy.ContinueOnError,
			}
		},
	}
}
