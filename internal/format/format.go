// Package format renders runs and boards for the CLI: compact tables for
// humans, JSONL and pretty JSON for tooling.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/drey/internal/coordinator"
	"github.com/dyluth/drey/pkg/blackboard"
)

// FormatRunTable writes runs as a formatted table to the provided writer.
// Returns the number of runs formatted.
func FormatRunTable(w io.Writer, runs []coordinator.RunInfo, instanceName string) int {
	if len(runs) == 0 {
		fmt.Fprintf(w, "No runs found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Runs for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-10s %-24s %-20s %-18s %-7s %-8s\n",
		"ID", "DOCUMENT", "PATH", "STATUS", "SCORE", "AGE")
	fmt.Fprintf(w, "%-10s %-24s %-20s %-18s %-7s %-8s\n",
		"----------", "------------------------", "--------------------", "------------------", "-------", "--------")

	for _, r := range runs {
		fmt.Fprintf(w, "%-10s %-24s %-20s %-18s %-7s %-8s\n",
			formatID(r.ID),
			truncate(r.DocID, 24),
			truncate(r.Path, 20),
			formatStatus(r),
			formatScore(r),
			formatTimestamp(r.CreatedAtMs),
		)
	}

	countMsg := "run"
	if len(runs) != 1 {
		countMsg = "runs"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(runs), countMsg)

	return len(runs)
}

// FormatRunJSONL writes runs as line-delimited JSON (JSONL) to the provided
// writer. Each run is a single JSON object on its own line, ready for jq.
func FormatRunJSONL(w io.Writer, runs []coordinator.RunInfo) error {
	for _, r := range runs {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal run to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes any value as pretty-printed JSON to the provided
// writer. Used in show mode to display complete run or board details.
func FormatSingleJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// FormatBoard writes a human-readable review summary of a board: clause
// assessments grouped by risk, then proposed redlines.
func FormatBoard(w io.Writer, b *blackboard.Blackboard) {
	fmt.Fprintf(w, "Board for run %s\n\n", formatID(b.RunID))
	fmt.Fprintf(w, "Clauses: %d  Assessments: %d  Proposals: %d  Subtasks: %d\n\n",
		len(b.Clauses), len(b.Assessments), len(b.Proposals), len(b.Subtasks))

	if len(b.Assessments) > 0 {
		fmt.Fprintf(w, "%-10s %-8s %s\n", "CLAUSE", "RISK", "RATIONALE")
		for _, a := range b.Assessments {
			fmt.Fprintf(w, "%-10s %-8s %s\n", formatID(a.ClauseID), a.Risk, truncate(a.Rationale, 60))
		}
		fmt.Fprintln(w)
	}

	for _, p := range b.Proposals {
		fmt.Fprintf(w, "Proposal %s (clause %s, by %s):\n", formatID(p.ID), formatID(p.ClauseID), p.ProposedBy)
		fmt.Fprintf(w, "  - %s\n", truncate(p.Original, 70))
		fmt.Fprintf(w, "  + %s\n", truncate(p.Revised, 70))
	}
}

// FormatEvent renders one run lifecycle event as a watch line.
func FormatEvent(e *coordinator.RunEvent) string {
	ts := time.Unix(e.TimestampMs/1000, (e.TimestampMs%1000)*1000000).Format("15:04:05")
	line := fmt.Sprintf("%s  %-10s %-20s %s", ts, formatID(e.RunID), e.Event, e.Status)
	if e.Stage != "" {
		line += fmt.Sprintf("  stage=%s", e.Stage)
	}
	if e.Detail != "" {
		line += fmt.Sprintf("  %s", e.Detail)
	}
	return line
}

// formatID truncates a run or clause ID to the first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatStatus annotates awaiting runs with their gate stage.
func formatStatus(r coordinator.RunInfo) string {
	if r.Status == coordinator.RunAwaitingApproval && r.Stage != "" {
		return fmt.Sprintf("awaiting:%s", truncate(r.Stage, 9))
	}
	return string(r.Status)
}

// formatScore hides the score until a run has finished.
func formatScore(r coordinator.RunInfo) string {
	if !r.Status.Terminal() {
		return "-"
	}
	return fmt.Sprintf("%.2f", r.Score)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

// formatTimestamp formats Unix milliseconds as relative time like "2m ago".
func formatTimestamp(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	t := time.Unix(timestampMs/1000, (timestampMs%1000)*1000000)
	diff := time.Since(t)

	if diff < time.Minute {
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	} else if diff < time.Hour {
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	} else if diff < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
}
