package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dyluth/drey/internal/coordinator"
	"github.com/dyluth/drey/pkg/blackboard"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Complex fields like
// history and result arrays are JSON-encoded into single hash fields. This
// keeps scalar fields individually queryable while the structured parts stay
// flexible.

// RunToHash converts a RunInfo to Redis hash format.
// Array fields (history, agent_results) are JSON-encoded.
func RunToHash(info coordinator.RunInfo) (map[string]interface{}, error) {
	historyJSON, err := json.Marshal(info.History)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}
	resultsJSON, err := json.Marshal(info.AgentResults)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal agent results: %w", err)
	}

	hash := map[string]interface{}{
		"id":              info.ID,
		"doc_id":          info.DocID,
		"path":            info.Path,
		"status":          string(info.Status),
		"stage":           info.Stage,
		"score":           strconv.FormatFloat(info.Score, 'f', -1, 64),
		"history":         string(historyJSON),
		"agent_results":   string(resultsJSON),
		"created_at_ms":   info.CreatedAtMs,
		"updated_at_ms":   info.UpdatedAtMs,
		"completed_at_ms": info.CompletedAtMs,
	}

	return hash, nil
}

// HashToRun converts a Redis hash back to a RunInfo.
// JSON fields are decoded back to Go types.
func HashToRun(hash map[string]string) (coordinator.RunInfo, error) {
	score, err := strconv.ParseFloat(hash["score"], 64)
	if err != nil {
		return coordinator.RunInfo{}, fmt.Errorf("invalid score field: %w", err)
	}

	var history []blackboard.HistoryEntry
	if raw := hash["history"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			return coordinator.RunInfo{}, fmt.Errorf("failed to unmarshal history: %w", err)
		}
	}

	info := coordinator.RunInfo{
		ID:     hash["id"],
		DocID:  hash["doc_id"],
		Path:   hash["path"],
		Status: coordinator.RunStatus(hash["status"]),
		Stage:  hash["stage"],
		Score:  score,
	}
	info.History = history

	if raw := hash["agent_results"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &info.AgentResults); err != nil {
			return coordinator.RunInfo{}, fmt.Errorf("failed to unmarshal agent_results: %w", err)
		}
	}

	info.CreatedAtMs, _ = strconv.ParseInt(hash["created_at_ms"], 10, 64)
	info.UpdatedAtMs, _ = strconv.ParseInt(hash["updated_at_ms"], 10, 64)
	info.CompletedAtMs, _ = strconv.ParseInt(hash["completed_at_ms"], 10, 64)

	return info, nil
}

// BoardToHash converts a blackboard to Redis hash format. Every slot is
// JSON-encoded; the run ID stays a plain field.
func BoardToHash(b *blackboard.Blackboard) (map[string]interface{}, error) {
	hash := map[string]interface{}{"run_id": b.RunID}

	fields := map[string]interface{}{
		"clauses":     b.Clauses,
		"assessments": b.Assessments,
		"proposals":   b.Proposals,
		"subtasks":    b.Subtasks,
		"approvals":   b.Approvals,
		"history":     b.History,
		"checkpoints": b.Checkpoints,
	}
	for field, v := range fields {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", field, err)
		}
		hash[field] = string(data)
	}

	return hash, nil
}

// HashToBoard converts a Redis hash back to a blackboard.
func HashToBoard(hash map[string]string) (*blackboard.Blackboard, error) {
	b := blackboard.New(hash["run_id"])

	decode := func(field string, dst interface{}) error {
		raw := hash[field]
		if raw == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", field, err)
		}
		return nil
	}

	if err := decode("clauses", &b.Clauses); err != nil {
		return nil, err
	}
	if err := decode("assessments", &b.Assessments); err != nil {
		return nil, err
	}
	if err := decode("proposals", &b.Proposals); err != nil {
		return nil, err
	}
	if err := decode("subtasks", &b.Subtasks); err != nil {
		return nil, err
	}
	if err := decode("approvals", &b.Approvals); err != nil {
		return nil, err
	}
	if err := decode("history", &b.History); err != nil {
		return nil, err
	}
	if err := decode("checkpoints", &b.Checkpoints); err != nil {
		return nil, err
	}

	return b, nil
}
