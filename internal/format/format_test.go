package format

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/drey/internal/coordinator"
	"github.com/dyluth/drey/pkg/blackboard"
)

func sampleRun(status coordinator.RunStatus) coordinator.RunInfo {
	return coordinator.RunInfo{
		ID:          uuid.New().String(),
		DocID:       "contract.txt",
		Path:        "contract_review",
		Status:      status,
		Score:       0.67,
		CreatedAtMs: time.Now().Add(-2 * time.Minute).UnixMilli(),
	}
}

func TestFormatRunTable(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		var sb strings.Builder
		count := FormatRunTable(&sb, nil, "legal")
		assert.Equal(t, 0, count)
		assert.Contains(t, sb.String(), "No runs found for instance 'legal'")
	})

	t.Run("formats columns and footer", func(t *testing.T) {
		runs := []coordinator.RunInfo{sampleRun(coordinator.RunCompleted), sampleRun(coordinator.RunRunning)}

		var sb strings.Builder
		count := FormatRunTable(&sb, runs, "legal")
		assert.Equal(t, 2, count)

		out := sb.String()
		assert.Contains(t, out, "ID")
		assert.Contains(t, out, "DOCUMENT")
		assert.Contains(t, out, runs[0].ID[:8])
		assert.Contains(t, out, "contract.txt")
		assert.Contains(t, out, "0.67")       // terminal run shows its score
		assert.Contains(t, out, "2m ago")
		assert.Contains(t, out, "2 runs found")
	})

	t.Run("awaiting run shows gate stage and no score", func(t *testing.T) {
		r := sampleRun(coordinator.RunAwaitingApproval)
		r.Stage = "risk_approval"

		var sb strings.Builder
		FormatRunTable(&sb, []coordinator.RunInfo{r}, "legal")

		out := sb.String()
		assert.Contains(t, out, "awaiting:risk_a...")
		assert.NotContains(t, out, "0.67")
	})
}

func TestFormatRunJSONL(t *testing.T) {
	runs := []coordinator.RunInfo{sampleRun(coordinator.RunCompleted), sampleRun(coordinator.RunFailed)}

	var sb strings.Builder
	require.NoError(t, FormatRunJSONL(&sb, runs))

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, lines, 2)
	for i, line := range lines {
		var decoded coordinator.RunInfo
		require.NoError(t, json.Unmarshal([]byte(line), &decoded))
		assert.Equal(t, runs[i].ID, decoded.ID)
		assert.Equal(t, runs[i].Status, decoded.Status)
	}
}

func TestFormatSingleJSON(t *testing.T) {
	r := sampleRun(coordinator.RunCompleted)

	var sb strings.Builder
	require.NoError(t, FormatSingleJSON(&sb, r))

	assert.True(t, strings.HasPrefix(sb.String(), "{\n"))
	var decoded coordinator.RunInfo
	require.NoError(t, json.Unmarshal([]byte(sb.String()), &decoded))
	assert.Equal(t, r.ID, decoded.ID)
}

func TestFormatBoard(t *testing.T) {
	board := blackboard.New(uuid.New().String())
	clause := blackboard.Clause{ID: uuid.New().String(), Index: 1, Text: "The supplier shall indemnify the buyer."}
	board.AddClauses(clause)
	board.AddAssessments(blackboard.Assessment{
		ClauseID:   clause.ID,
		Risk:       blackboard.RiskHigh,
		Rationale:  "clause contains high risk term",
		AssessedBy: "scorer",
	})
	board.AddProposals(blackboard.Proposal{
		ID:         uuid.New().String(),
		ClauseID:   clause.ID,
		Original:   clause.Text,
		Revised:    "The supplier shall indemnify the buyer, capped at fees paid.",
		ProposedBy: "redline",
	})

	var sb strings.Builder
	FormatBoard(&sb, board)

	out := sb.String()
	assert.Contains(t, out, "Clauses: 1  Assessments: 1  Proposals: 1")
	assert.Contains(t, out, "HIGH")
	assert.Contains(t, out, clause.ID[:8])
	assert.Contains(t, out, "- The supplier shall indemnify")
	assert.Contains(t, out, "+ The supplier shall indemnify the buyer, capped")
}

func TestFormatEvent(t *testing.T) {
	e := &coordinator.RunEvent{
		RunID:       uuid.New().String(),
		Path:        "contract_review",
		Event:       blackboard.EventGateEntered,
		Status:      coordinator.RunAwaitingApproval,
		Stage:       "risk_approval",
		Detail:      "after step scorer",
		TimestampMs: time.Date(2026, 3, 1, 9, 30, 15, 0, time.Local).UnixMilli(),
	}

	line := FormatEvent(e)
	assert.Contains(t, line, "09:30:15")
	assert.Contains(t, line, e.RunID[:8])
	assert.Contains(t, line, "gate_entered")
	assert.Contains(t, line, "stage=risk_approval")
	assert.Contains(t, line, "after step scorer")

	t.Run("stage and detail omitted when empty", func(t *testing.T) {
		bare := &coordinator.RunEvent{RunID: e.RunID, Event: "run_started", Status: coordinator.RunRunning}
		line := FormatEvent(bare)
		assert.NotContains(t, line, "stage=")
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 20))
	assert.Equal(t, "trimmed", truncate("  trimmed  ", 20))

	long := strings.Repeat("x", 30)
	got := truncate(long, 20)
	assert.Len(t, got, 20)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "-", formatTimestamp(0))
	assert.Contains(t, formatTimestamp(time.Now().Add(-30*time.Second).UnixMilli()), "s ago")
	assert.Contains(t, formatTimestamp(time.Now().Add(-5*time.Minute).UnixMilli()), "m ago")
	assert.Contains(t, formatTimestamp(time.Now().Add(-3*time.Hour).UnixMilli()), "h ago")
	assert.Contains(t, formatTimestamp(time.Now().Add(-48*time.Hour).UnixMilli()), "d ago")
}
