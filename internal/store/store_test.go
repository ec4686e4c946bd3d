package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/drey/internal/coordinator"
	"github.com/dyluth/drey/pkg/blackboard"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func testRunInfo() coordinator.RunInfo {
	return coordinator.RunInfo{
		ID:     uuid.New().String(),
		DocID:  "contract.txt",
		Path:   "contract_review",
		Status: coordinator.RunCompleted,
		Score:  0.75,
		History: []blackboard.HistoryEntry{
			{Seq: 1, TimestampMs: 1000, Event: blackboard.EventAgentStarted, Agent: "parser"},
			{Seq: 2, TimestampMs: 2000, Event: blackboard.EventRunCompleted},
		},
		CreatedAtMs:   1000,
		UpdatedAtMs:   2000,
		CompletedAtMs: 2000,
	}
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.Equal(t, "test-instance", client.instanceName)
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestPing(t *testing.T) {
	client, _ := setupTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestArchiveRun(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("round-trips a run", func(t *testing.T) {
		info := testRunInfo()
		require.NoError(t, client.ArchiveRun(ctx, info))

		got, err := client.GetRun(ctx, info.ID)
		require.NoError(t, err)
		assert.Equal(t, info.ID, got.ID)
		assert.Equal(t, info.Status, got.Status)
		assert.InDelta(t, info.Score, got.Score, 0.0001)
		assert.Equal(t, info.History, got.History)
		assert.Equal(t, info.CompletedAtMs, got.CompletedAtMs)
	})

	t.Run("rejects empty run ID", func(t *testing.T) {
		assert.Error(t, client.ArchiveRun(ctx, coordinator.RunInfo{}))
	})

	t.Run("archiving again replaces the snapshot", func(t *testing.T) {
		info := testRunInfo()
		info.Status = coordinator.RunRunning
		require.NoError(t, client.ArchiveRun(ctx, info))

		info.Status = coordinator.RunCompleted
		require.NoError(t, client.ArchiveRun(ctx, info))

		got, err := client.GetRun(ctx, info.ID)
		require.NoError(t, err)
		assert.Equal(t, coordinator.RunCompleted, got.Status)
	})
}

func TestGetRunNotFound(t *testing.T) {
	client, _ := setupTestClient(t)

	_, err := client.GetRun(context.Background(), uuid.New().String())
	assert.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestListRuns(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("empty archive lists nothing", func(t *testing.T) {
		runs, err := client.ListRuns(ctx)
		require.NoError(t, err)
		assert.Empty(t, runs)
	})

	t.Run("lists newest first", func(t *testing.T) {
		older := testRunInfo()
		older.CreatedAtMs = 1000
		newer := testRunInfo()
		newer.CreatedAtMs = 5000

		require.NoError(t, client.ArchiveRun(ctx, older))
		require.NoError(t, client.ArchiveRun(ctx, newer))

		runs, err := client.ListRuns(ctx)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, newer.ID, runs[0].ID)
		assert.Equal(t, older.ID, runs[1].ID)
	})
}

func TestArchiveBoard(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("round-trips a board", func(t *testing.T) {
		board := blackboard.New(uuid.New().String())
		clause := blackboard.Clause{ID: uuid.New().String(), Index: 1, Text: "clause text"}
		board.AddClauses(clause)
		board.AddAssessments(blackboard.Assessment{ClauseID: clause.ID, Risk: blackboard.RiskHigh, AssessedBy: "scorer"})
		board.Record(blackboard.EventAgentStarted, "scorer", "", "")
		board.SetApproval(blackboard.Approval{Stage: "risk_approval", ApprovedIDs: []string{clause.ID}})
		board.Checkpoint("after-score")

		require.NoError(t, client.ArchiveBoard(ctx, board))

		got, err := client.GetBoard(ctx, board.RunID)
		require.NoError(t, err)
		assert.Equal(t, board.RunID, got.RunID)
		assert.Equal(t, board.Clauses, got.Clauses)
		assert.Equal(t, board.Assessments, got.Assessments)
		assert.Equal(t, board.History, got.History)
		assert.Equal(t, board.Approvals, got.Approvals)
		require.Len(t, got.Checkpoints, 1)
		assert.Equal(t, "after-score", got.Checkpoints[0].Step)
	})

	t.Run("rejects nil board", func(t *testing.T) {
		assert.Error(t, client.ArchiveBoard(ctx, nil))
	})

	t.Run("missing board is not found", func(t *testing.T) {
		_, err := client.GetBoard(ctx, uuid.New().String())
		assert.True(t, IsNotFound(err))
	})
}

func TestRunEvents(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("published events reach subscribers", func(t *testing.T) {
		sub, err := client.SubscribeRunEvents(ctx)
		require.NoError(t, err)
		defer sub.Close()

		// miniredis delivers to subscribers registered before publish
		time.Sleep(50 * time.Millisecond)

		event := coordinator.RunEvent{
			RunID:       uuid.New().String(),
			Path:        "contract_review",
			Event:       blackboard.EventStageCompleted,
			Status:      coordinator.RunRunning,
			Stage:       "scorer",
			TimestampMs: time.Now().UnixMilli(),
		}
		require.NoError(t, client.PublishRunEvent(ctx, event))

		select {
		case got := <-sub.Events():
			assert.Equal(t, event.RunID, got.RunID)
			assert.Equal(t, event.Event, got.Event)
			assert.Equal(t, event.Stage, got.Stage)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for run event")
		}
	})

	t.Run("sink interface swallows publish results", func(t *testing.T) {
		// RunEvent must never propagate errors into the engine.
		assert.NotPanics(t, func() {
			client.RunEvent(ctx, coordinator.RunEvent{RunID: "x", Event: "run_started"})
		})
	})

	t.Run("close is idempotent", func(t *testing.T) {
		sub, err := client.SubscribeRunEvents(ctx)
		require.NoError(t, err)
		assert.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())
	})
}

func TestSerializationErrors(t *testing.T) {
	t.Run("invalid score field", func(t *testing.T) {
		_, err := HashToRun(map[string]string{"id": "x", "score": "not-a-number"})
		assert.Error(t, err)
	})

	t.Run("invalid history JSON", func(t *testing.T) {
		_, err := HashToRun(map[string]string{"id": "x", "score": "0", "history": "{broken"})
		assert.Error(t, err)
	})

	t.Run("invalid board field JSON", func(t *testing.T) {
		_, err := HashToBoard(map[string]string{"run_id": "x", "clauses": "{broken"})
		assert.Error(t, err)
	})
}
