package team

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/drey/pkg/agent"
	"github.com/dyluth/drey/pkg/blackboard"
)

// stubAgent is a configurable agent for topology tests. It records the order
// it was invoked in and can write assessments, fail, or block.
type stubAgent struct {
	name    string
	execute func(ctx context.Context, task agent.Task, board *blackboard.Blackboard) agent.Result
}

func (s *stubAgent) Name() string           { return s.name }
func (s *stubAgent) Role() string           { return "test" }
func (s *stubAgent) Capabilities() []string { return nil }
func (s *stubAgent) Execute(ctx context.Context, task agent.Task, board *blackboard.Blackboard) agent.Result {
	return s.execute(ctx, task, board)
}

// callOrder collects invocation order across goroutines.
type callOrder struct {
	mu    sync.Mutex
	calls []string
}

func (c *callOrder) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *callOrder) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.calls...)
}

func okAgent(name string, order *callOrder) *stubAgent {
	return &stubAgent{name: name, execute: func(_ context.Context, task agent.Task, board *blackboard.Blackboard) agent.Result {
		if order != nil {
			order.add(name)
		}
		board.AddAssessments(blackboard.Assessment{
			ClauseID:   uuid.New().String(),
			Risk:       blackboard.RiskLow,
			Rationale:  "ok",
			AssessedBy: name,
		})
		return agent.Result{AgentName: name, Status: agent.StatusSuccess, Output: map[string]any{"output": "from " + name}}
	}}
}

func failAgent(name string) *stubAgent {
	return &stubAgent{name: name, execute: func(context.Context, agent.Task, *blackboard.Blackboard) agent.Result {
		return agent.Result{AgentName: name, Status: agent.StatusFailed, Error: "deliberate failure"}
	}}
}

func TestNewTeam(t *testing.T) {
	t.Run("rejects empty team", func(t *testing.T) {
		_, err := New("empty", PatternSequential, Policy{})
		assert.Error(t, err)
	})

	t.Run("rejects manager_worker with single agent", func(t *testing.T) {
		_, err := New("mw", PatternManagerWorker, Policy{}, okAgent("solo", nil))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "manager and at least one worker")
	})

	t.Run("rejects duplicate agent names", func(t *testing.T) {
		_, err := New("dup", PatternSequential, Policy{}, okAgent("a", nil), okAgent("a", nil))
		assert.Error(t, err)
	})

	t.Run("rejects unknown pattern", func(t *testing.T) {
		_, err := New("x", Pattern("circular"), Policy{}, okAgent("a", nil))
		assert.Error(t, err)
	})

	t.Run("applies default timeouts", func(t *testing.T) {
		tm, err := New("t", PatternParallel, Policy{}, okAgent("a", nil))
		require.NoError(t, err)
		assert.Equal(t, DefaultPolicy().JoinTimeout, tm.Policy.JoinTimeout)
		assert.Equal(t, DefaultPolicy().SubtaskTimeout, tm.Policy.SubtaskTimeout)
	})
}

func TestSequential(t *testing.T) {
	ctx := context.Background()

	t.Run("runs agents in declared order", func(t *testing.T) {
		order := &callOrder{}
		tm, err := New("seq", PatternSequential, Policy{},
			okAgent("first", order), okAgent("second", order), okAgent("third", order))
		require.NoError(t, err)

		board := blackboard.New("run-1")
		res := tm.Execute(ctx, agent.Task{DocID: "doc"}, board)

		assert.True(t, res.Success)
		assert.Equal(t, []string{"first", "second", "third"}, order.get())
		assert.Len(t, board.Assessments, 3)
		// One step per agent so gates can interleave.
		assert.Len(t, tm.Steps(), 3)
	})

	t.Run("halts on first failure by default", func(t *testing.T) {
		order := &callOrder{}
		tm, err := New("seq", PatternSequential, Policy{},
			okAgent("first", order), failAgent("boom"), okAgent("third", order))
		require.NoError(t, err)

		board := blackboard.New("run-1")
		res := tm.Execute(ctx, agent.Task{}, board)

		assert.False(t, res.Success)
		assert.Equal(t, []string{"first"}, order.get())
		require.Len(t, res.AgentResults, 2)
		assert.Equal(t, agent.StatusFailed, res.AgentResults[1].Status)
	})

	t.Run("continue_on_error runs all agents", func(t *testing.T) {
		order := &callOrder{}
		tm, err := New("seq", PatternSequential, Policy{ContinueOnError: true},
			okAgent("first", order), failAgent("boom"), okAgent("third", order))
		require.NoError(t, err)

		board := blackboard.New("run-1")
		res := tm.Execute(ctx, agent.Task{}, board)

		assert.False(t, res.Success)
		assert.Equal(t, []string{"first", "third"}, order.get())
		assert.Len(t, res.AgentResults, 3)
	})

	t.Run("records start and outcome history per agent", func(t *testing.T) {
		tm, err := New("seq", PatternSequential, Policy{}, okAgent("only", nil))
		require.NoError(t, err)

		board := blackboard.New("run-1")
		tm.Execute(ctx, agent.Task{}, board)

		require.Len(t, board.History, 2)
		assert.Equal(t, blackboard.EventAgentStarted, board.History[0].Event)
		assert.Equal(t, blackboard.EventAgentSucceeded, board.History[1].Event)
	})
}

func TestPipeline(t *testing.T) {
	ctx := context.Background()

	t.Run("chains primary output into the next task", func(t *testing.T) {
		var secondSaw string
		first := &stubAgent{name: "first", execute: func(_ context.Context, task agent.Task, _ *blackboard.Blackboard) agent.Result {
			return agent.Result{Status: agent.StatusSuccess, Output: map[string]any{"output": "transformed:" + task.Content}}
		}}
		second := &stubAgent{name: "second", execute: func(_ context.Context, task agent.Task, _ *blackboard.Blackboard) agent.Result {
			secondSaw = task.Content
			return agent.Result{Status: agent.StatusSuccess}
		}}

		tm, err := New("pipe", PatternPipeline, Policy{}, first, second)
		require.NoError(t, err)

		res := tm.Execute(ctx, agent.Task{Content: "raw"}, blackboard.New("run-1"))
		assert.True(t, res.Success)
		assert.Equal(t, "transformed:raw", secondSaw)
	})

	t.Run("keeps task unchanged when agent has no primary output", func(t *testing.T) {
		var secondSaw string
		first := &stubAgent{name: "first", execute: func(context.Context, agent.Task, *blackboard.Blackboard) agent.Result {
			return agent.Result{Status: agent.StatusSuccess}
		}}
		second := &stubAgent{name: "second", execute: func(_ context.Context, task agent.Task, _ *blackboard.Blackboard) agent.Result {
			secondSaw = task.Content
			return agent.Result{Status: agent.StatusSuccess}
		}}

		tm, err := New("pipe", PatternPipeline, Policy{}, first, second)
		require.NoError(t, err)

		tm.Execute(ctx, agent.Task{Content: "raw"}, blackboard.New("run-1"))
		assert.Equal(t, "raw", secondSaw)
	})
}

func TestParallel(t *testing.T) {
	ctx := context.Background()

	t.Run("merges successful agents deterministically", func(t *testing.T) {
		tm, err := New("par", PatternParallel, Policy{JoinTimeout: 2 * time.Second},
			okAgent("charlie", nil), okAgent("alpha", nil), okAgent("bravo", nil))
		require.NoError(t, err)

		board := blackboard.New("run-1")
		res := tm.Execute(ctx, agent.Task{}, board)

		assert.True(t, res.Success)
		require.Len(t, board.Assessments, 3)
		// Merge is sorted by agent name regardless of completion order.
		assert.Equal(t, "alpha", board.Assessments[0].AssessedBy)
		assert.Equal(t, "bravo", board.Assessments[1].AssessedBy)
		assert.Equal(t, "charlie", board.Assessments[2].AssessedBy)
	})

	t.Run("start events precede concurrent work in declared order", func(t *testing.T) {
		tm, err := New("par", PatternParallel, Policy{JoinTimeout: 2 * time.Second},
			okAgent("zeta", nil), okAgent("alpha", nil))
		require.NoError(t, err)

		board := blackboard.New("run-1")
		tm.Execute(ctx, agent.Task{}, board)

		assert.Equal(t, blackboard.EventAgentStarted, board.History[0].Event)
		assert.Equal(t, "zeta", board.History[0].Agent)
		assert.Equal(t, "alpha", board.History[1].Agent)
	})

	t.Run("failed agent contributes nothing but others commit", func(t *testing.T) {
		writeThenFail := &stubAgent{name: "traitor", execute: func(_ context.Context, _ agent.Task, board *blackboard.Blackboard) agent.Result {
			board.AddProposals(blackboard.Proposal{ID: uuid.New().String(), ClauseID: uuid.New().String(), Revised: "x"})
			return agent.Result{Status: agent.StatusFailed, Error: "late failure"}
		}}

		tm, err := New("par", PatternParallel, Policy{JoinTimeout: 2 * time.Second},
			okAgent("honest", nil), writeThenFail)
		require.NoError(t, err)

		board := blackboard.New("run-1")
		res := tm.Execute(ctx, agent.Task{}, board)

		assert.False(t, res.Success)
		assert.Len(t, board.Assessments, 1)
		assert.Empty(t, board.Proposals) // failed agent's writes were discarded with its clone
	})

	t.Run("join timeout records stragglers as failed", func(t *testing.T) {
		slow := &stubAgent{name: "slow", execute: func(ctx context.Context, _ agent.Task, _ *blackboard.Blackboard) agent.Result {
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			return agent.Result{Status: agent.StatusSuccess}
		}}

		tm, err := New("par", PatternParallel, Policy{JoinTimeout: 100 * time.Millisecond},
			okAgent("fast", nil), slow)
		require.NoError(t, err)

		board := blackboard.New("run-1")
		start := time.Now()
		res := tm.Execute(ctx, agent.Task{}, board)

		assert.Less(t, time.Since(start), 2*time.Second)
		assert.False(t, res.Success)
		assert.Len(t, board.Assessments, 1) // fast agent's work still committed

		var timeoutResult *agent.Result
		for i := range res.AgentResults {
			if res.AgentResults[i].AgentName == "slow" {
				timeoutResult = &res.AgentResults[i]
			}
		}
		require.NotNil(t, timeoutResult)
		assert.Contains(t, timeoutResult.Error, "join timeout")
	})

	t.Run("cancelled context aborts without committing", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(context.Background())
		blocker := &stubAgent{name: "blocker", execute: func(ctx context.Context, _ agent.Task, board *blackboard.Blackboard) agent.Result {
			board.AddAssessments(blackboard.Assessment{ClauseID: uuid.New().String(), Risk: blackboard.RiskLow, AssessedBy: "blocker"})
			cancel()
			<-ctx.Done()
			return agent.Result{Status: agent.StatusSuccess}
		}}

		tm, err := New("par", PatternParallel, Policy{JoinTimeout: 5 * time.Second}, blocker)
		require.NoError(t, err)

		board := blackboard.New("run-1")
		out := tm.Steps()[0].Run(cancelCtx, agent.Task{}, board)

		assert.True(t, out.Aborted)
		assert.Empty(t, board.Assessments)
	})
}

func TestManagerWorker(t *testing.T) {
	ctx := context.Background()

	// managerOf returns a manager that decomposes the task into n subtasks.
	managerOf := func(n int) *stubAgent {
		return &stubAgent{name: "manager", execute: func(_ context.Context, _ agent.Task, board *blackboard.Blackboard) agent.Result {
			for i := 0; i < n; i++ {
				board.AddSubtasks(blackboard.Subtask{
					ID:      uuid.New().String(),
					Kind:    "assess_clause",
					Payload: fmt.Sprintf("clause %d", i+1),
					Status:  blackboard.SubtaskPending,
				})
			}
			return agent.Result{Status: agent.StatusSuccess}
		}}
	}

	worker := func(name string) *stubAgent {
		return &stubAgent{name: name, execute: func(_ context.Context, task agent.Task, board *blackboard.Blackboard) agent.Result {
			board.AddAssessments(blackboard.Assessment{
				ClauseID:   uuid.New().String(),
				Risk:       blackboard.RiskLow,
				Rationale:  task.Content,
				AssessedBy: name,
			})
			return agent.Result{Status: agent.StatusSuccess}
		}}
	}

	t.Run("five subtasks drain through three workers", func(t *testing.T) {
		tm, err := New("mw", PatternManagerWorker, Policy{JoinTimeout: 5 * time.Second, SubtaskTimeout: 2 * time.Second},
			managerOf(5), worker("w1"), worker("w2"), worker("w3"))
		require.NoError(t, err)

		board := blackboard.New("run-1")
		res := tm.Execute(ctx, agent.Task{DocID: "doc"}, board)

		assert.True(t, res.Success)
		assert.Len(t, board.Subtasks, 5)
		for _, st := range board.Subtasks {
			assert.Equal(t, blackboard.SubtaskDone, st.Status)
		}
		assert.Len(t, board.Assessments, 5)
		// manager + 5 subtask executions
		assert.Len(t, res.AgentResults, 6)
	})

	t.Run("manager failure halts the team", func(t *testing.T) {
		tm, err := New("mw", PatternManagerWorker, Policy{}, failAgent("manager"), worker("w1"))
		require.NoError(t, err)

		board := blackboard.New("run-1")
		res := tm.Execute(ctx, agent.Task{}, board)

		assert.False(t, res.Success)
		assert.Empty(t, board.Subtasks)
	})

	t.Run("empty decomposition succeeds", func(t *testing.T) {
		tm, err := New("mw", PatternManagerWorker, Policy{}, managerOf(0), worker("w1"))
		require.NoError(t, err)

		res := tm.Execute(ctx, agent.Task{}, blackboard.New("run-1"))
		assert.True(t, res.Success)
		assert.Len(t, res.AgentResults, 1)
	})

	t.Run("failed subtasks reduce coverage but team succeeds", func(t *testing.T) {
		flaky := &stubAgent{name: "flaky", execute: func(_ context.Context, task agent.Task, board *blackboard.Blackboard) agent.Result {
			if task.Content == "clause 1" {
				return agent.Result{Status: agent.StatusFailed, Error: "cannot assess"}
			}
			board.AddAssessments(blackboard.Assessment{ClauseID: uuid.New().String(), Risk: blackboard.RiskLow, AssessedBy: "flaky"})
			return agent.Result{Status: agent.StatusSuccess}
		}}

		tm, err := New("mw", PatternManagerWorker, Policy{JoinTimeout: 5 * time.Second, SubtaskTimeout: 2 * time.Second},
			managerOf(3), flaky)
		require.NoError(t, err)

		board := blackboard.New("run-1")
		res := tm.Execute(ctx, agent.Task{}, board)

		assert.True(t, res.Success)
		assert.Len(t, board.Assessments, 2)

		statuses := map[blackboard.SubtaskStatus]int{}
		for _, st := range board.Subtasks {
			statuses[st.Status]++
		}
		assert.Equal(t, 2, statuses[blackboard.SubtaskDone])
		assert.Equal(t, 1, statuses[blackboard.SubtaskFailed])
	})

	t.Run("fail_on_subtask_failure fails the team", func(t *testing.T) {
		alwaysFail := &stubAgent{name: "w", execute: func(context.Context, agent.Task, *blackboard.Blackboard) agent.Result {
			return agent.Result{Status: agent.StatusFailed, Error: "nope"}
		}}

		tm, err := New("mw", PatternManagerWorker,
			Policy{JoinTimeout: 5 * time.Second, SubtaskTimeout: 2 * time.Second, FailOnSubtaskFailure: true},
			managerOf(2), alwaysFail)
		require.NoError(t, err)

		res := tm.Execute(ctx, agent.Task{}, blackboard.New("run-1"))
		assert.False(t, res.Success)
	})

	t.Run("all subtasks failing fails the team", func(t *testing.T) {
		alwaysFail := &stubAgent{name: "w", execute: func(context.Context, agent.Task, *blackboard.Blackboard) agent.Result {
			return agent.Result{Status: agent.StatusFailed, Error: "nope"}
		}}

		tm, err := New("mw", PatternManagerWorker,
			Policy{JoinTimeout: 5 * time.Second, SubtaskTimeout: 2 * time.Second},
			managerOf(2), alwaysFail)
		require.NoError(t, err)

		res := tm.Execute(ctx, agent.Task{}, blackboard.New("run-1"))
		assert.False(t, res.Success)
	})

	t.Run("subtask timeout marks the subtask failed", func(t *testing.T) {
		hang := &stubAgent{name: "hang", execute: func(ctx context.Context, _ agent.Task, _ *blackboard.Blackboard) agent.Result {
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			return agent.Result{Status: agent.StatusSuccess}
		}}

		tm, err := New("mw", PatternManagerWorker,
			Policy{JoinTimeout: 2 * time.Second, SubtaskTimeout: 100 * time.Millisecond},
			managerOf(1), hang)
		require.NoError(t, err)

		board := blackboard.New("run-1")
		start := time.Now()
		tm.Execute(ctx, agent.Task{}, board)

		assert.Less(t, time.Since(start), 2*time.Second)
		require.Len(t, board.Subtasks, 1)
		assert.Equal(t, blackboard.SubtaskFailed, board.Subtasks[0].Status)
		assert.Contains(t, board.Subtasks[0].Error, "subtask timeout")

		var sawTimeout bool
		for _, e := range board.History {
			if e.Event == blackboard.EventSubtaskTimeout {
				sawTimeout = true
			}
		}
		assert.True(t, sawTimeout)
	})

	t.Run("join timeout with a pending queue leaves the merge as sole writer", func(t *testing.T) {
		// Join expires while the workers are still mid-subtask with more
		// queued behind them. Stragglers finish against their private clones;
		// nothing may reach the canonical board after the merge.
		slowWorker := func(name string) *stubAgent {
			return &stubAgent{name: name, execute: func(ctx context.Context, _ agent.Task, board *blackboard.Blackboard) agent.Result {
				select {
				case <-time.After(150 * time.Millisecond):
				case <-ctx.Done():
				}
				board.AddAssessments(blackboard.Assessment{ClauseID: uuid.New().String(), Risk: blackboard.RiskLow, AssessedBy: name})
				return agent.Result{Status: agent.StatusSuccess}
			}}
		}

		tm, err := New("mw", PatternManagerWorker,
			Policy{JoinTimeout: 50 * time.Millisecond, SubtaskTimeout: 5 * time.Second},
			managerOf(4), slowWorker("w1"), slowWorker("w2"))
		require.NoError(t, err)

		board := blackboard.New("run-1")
		start := time.Now()
		res := tm.Execute(ctx, agent.Task{}, board)

		assert.Less(t, time.Since(start), 2*time.Second)
		assert.False(t, res.Success)
		require.Len(t, board.Subtasks, 4)
		for _, st := range board.Subtasks {
			assert.Equal(t, blackboard.SubtaskFailed, st.Status)
			assert.Contains(t, st.Error, "unresolved at join timeout")
		}
		assert.Empty(t, board.Assessments)

		// Let the in-flight stragglers run to completion, then confirm the
		// board is exactly as the merge left it.
		historyLen := len(board.History)
		time.Sleep(400 * time.Millisecond)
		assert.Len(t, board.History, historyLen)
		assert.Empty(t, board.Assessments)
		for _, st := range board.Subtasks {
			assert.Equal(t, blackboard.SubtaskFailed, st.Status)
		}
	})
}
