// Package agent defines the contract every drey agent implements, and the
// task/result types that flow through it. Agents are the engine's primary
// extension point: anything satisfying the Agent interface can be placed in
// a team, from the built-in review agents to container-backed ones.
package agent

import (
	"context"
	"fmt"

	"github.com/dyluth/drey/pkg/blackboard"
)

// Status is the lifecycle state of an agent within one run.
// Idle -> Running -> {Success, Failed}; terminal and one-shot per run.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Validate checks if the Status is a valid enum value.
func (s Status) Validate() error {
	switch s {
	case StatusIdle, StatusRunning, StatusSuccess, StatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown agent status: %q", s)
	}
}

// Task is the work payload handed to an agent: a document (or subtask)
// identifier, its raw content, and the optional policy rules that domain
// gate predicates and agents may consult.
type Task struct {
	DocID       string            `json:"doc_id"`
	Content     string            `json:"content"`
	PolicyRules map[string]string `json:"policy_rules,omitempty"`
}

// Result is the immutable outcome of one agent execution.
type Result struct {
	AgentName string         `json:"agent_name"`
	Status    Status         `json:"status"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// PrimaryOutput returns the "output" entry as a string, if present.
// Pipeline teams chain it into the next agent's task content.
func (r Result) PrimaryOutput() (string, bool) {
	if r.Output == nil {
		return "", false
	}
	s, ok := r.Output["output"].(string)
	return s, ok
}

// Succeeded reports whether the result is a success.
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Agent is a unit of work with a name, a role, a capability set and an
// execute contract. Execute reads from and writes to the given board; by
// convention an agent writes only to the slots it owns. Implementations
// report failure through the returned Result rather than panicking, but the
// engine guards against panics anyway (see Run).
//
// An Agent instance is not reused across concurrent runs without
// re-instantiation or internal locking.
type Agent interface {
	Name() string
	Role() string
	Capabilities() []string
	Execute(ctx context.Context, task Task, board *blackboard.Blackboard) Result
}

// Run executes an agent and converts any panic into a Failed result, so a
// misbehaving agent can never crash the engine or corrupt other runs.
func Run(ctx context.Context, a Agent, task Task, board *blackboard.Blackboard) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{
				AgentName: a.Name(),
				Status:    StatusFailed,
				Error:     fmt.Sprintf("agent panic: %v", r),
			}
		}
	}()

	result = a.Execute(ctx, task, board)
	if result.AgentName == "" {
		result.AgentName = a.Name()
	}
	if err := result.Status.Validate(); err != nil || result.Status == StatusIdle || result.Status == StatusRunning {
		// Normalize sloppy implementations: a finished execute call must
		// land in a terminal status.
		if result.Error != "" {
			result.Status = StatusFailed
		} else {
			result.Status = StatusSuccess
		}
	}
	return result
}

// Failed builds a Failed result for the given agent name.
func Failed(name string, err error) Result {
	return Result{AgentName: name, Status: StatusFailed, Error: err.Error()}
}
