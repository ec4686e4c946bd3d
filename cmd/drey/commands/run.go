package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/drey/internal/coordinator"
	"github.com/dyluth/drey/internal/format"
	"github.com/dyluth/drey/internal/printer"
	"github.com/dyluth/drey/pkg/blackboard"
)

var (
	runPath       string
	runDocID      string
	runApproveAll bool
	runTimeout    time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run DOCUMENT",
	Short: "Review a document through an agent path",
	Long: `Run a document through the agents of the given path and follow the run
to completion, resolving approval gates along the way.

DOCUMENT is a file path, or "-" to read the document from stdin.
Clauses are paragraphs separated by blank lines.

When the run reaches an approval gate, the flagged clauses are shown and
you decide interactively which proceed. With --approve-all every gate is
resolved by approving all flagged items, which keeps the run unattended.

Examples:
  # Interactive review
  drey run contract.txt --path=contract_review

  # Unattended review from stdin
  cat contract.txt | drey run - --path=contract_review --approve-all`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runPath, "path", "p", "", "Agent path to run (required)")
	runCmd.Flags().StringVar(&runDocID, "doc", "", "Document ID (defaults to the file name)")
	runCmd.Flags().BoolVar(&runApproveAll, "approve-all", false, "Resolve every gate by approving all flagged items")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 5*time.Minute, "Overall run timeout")
	runCmd.MarkFlagRequired("path")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	text, docID, err := readDocument(args[0])
	if err != nil {
		return err
	}
	if runDocID != "" {
		docID = runDocID
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The archive is optional for run: without it the run is in-memory only.
	archive, archiveErr := archiveClient(ctx, cfg)
	if archiveErr != nil {
		if cfg.Redis != nil && cfg.Redis.Addr != "" {
			return archiveErr
		}
		archive = nil
	}
	if archive != nil {
		defer archive.Close()
	}

	coord, cleanup, err := buildCoordinator(ctx, cfg, archive)
	if err != nil {
		return err
	}
	defer cleanup()

	runID, err := coord.StartRun(ctx, docID, text, runPath, cfg.PolicyRules)
	if err != nil {
		if errors.Is(err, coordinator.ErrUnknownPath) {
			return printer.Error(
				"unknown agent path",
				fmt.Sprintf("No path named %q is configured.", runPath),
				[]string{"Run 'drey teams' to list configured paths"},
			)
		}
		return err
	}
	printer.Step("Started run %s for document %q on path %q\n", runID[:8], docID, runPath)

	info, err := followRun(ctx, coord, runID)
	if err != nil {
		return err
	}

	printSummary(coord, info)

	if archive != nil {
		if err := archive.ArchiveRun(ctx, info); err != nil {
			printer.Warning("failed to archive run: %v\n", err)
		} else if board, err := coord.GetBlackboard(runID); err == nil {
			if err := archive.ArchiveBoard(ctx, board); err != nil {
				printer.Warning("failed to archive board: %v\n", err)
			}
		}
	}

	if info.Status != coordinator.RunCompleted {
		return fmt.Errorf("run %s ended %s", runID[:8], info.Status)
	}
	return nil
}

// followRun polls the run until it is terminal, resolving gates as they come
// up. Poll interval is short; the engine does the real waiting.
func followRun(ctx context.Context, coord *coordinator.Coordinator, runID string) (coordinator.RunInfo, error) {
	deadline := time.Now().Add(runTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return coordinator.RunInfo{}, ctx.Err()
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			coord.Abort(runID)
			return coordinator.RunInfo{}, fmt.Errorf("run timed out after %v, aborted", runTimeout)
		}

		info, err := coord.GetRun(runID)
		if err != nil {
			return coordinator.RunInfo{}, err
		}
		if info.Status.Terminal() {
			return info, nil
		}
		if info.Status == coordinator.RunAwaitingApproval {
			if err := resolveGate(coord, runID, info.Stage); err != nil {
				return coordinator.RunInfo{}, err
			}
		}
	}
}

// resolveGate shows the flagged items for the gate stage and records the
// decision. --approve-all approves everything without prompting.
func resolveGate(coord *coordinator.Coordinator, runID, stage string) error {
	board, err := coord.GetBlackboard(runID)
	if err != nil {
		return err
	}

	flagged := flaggedIDs(board, stage)
	printer.Warning("Run paused at gate %q with %d flagged item(s)\n", stage, len(flagged))
	describeFlagged(board, stage)

	approved := flagged
	var rejected []string
	notes := "approved via --approve-all"

	if !runApproveAll {
		fmt.Printf("Approve all %d item(s) at %q? [y/N]: ", len(flagged), stage)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		notes = "resolved interactively"
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
			approved, rejected = nil, flagged
		}
	}

	return coord.Approve(runID, stage, approved, rejected, notes)
}

// flaggedIDs picks the board items a gate stage is deciding over: high risk
// clauses for risk approval, proposals for final approval.
func flaggedIDs(board *blackboard.Blackboard, stage string) []string {
	if stage == coordinator.StageFinalApproval && len(board.Proposals) > 0 {
		ids := make([]string, 0, len(board.Proposals))
		for _, p := range board.Proposals {
			ids = append(ids, p.ID)
		}
		return ids
	}
	return board.RiskIDs(blackboard.RiskHigh)
}

func describeFlagged(board *blackboard.Blackboard, stage string) {
	if stage == coordinator.StageFinalApproval && len(board.Proposals) > 0 {
		for _, p := range board.Proposals {
			printer.Printf("  proposal %s: %s\n", p.ID[:8], truncateLine(p.Revised))
		}
		return
	}
	for _, a := range board.Assessments {
		if a.Risk != blackboard.RiskHigh {
			continue
		}
		if c := board.ClauseByID(a.ClauseID); c != nil {
			printer.Printf("  clause %d [%s]: %s\n", c.Index, a.Risk, truncateLine(c.Text))
		}
	}
}

func printSummary(coord *coordinator.Coordinator, info coordinator.RunInfo) {
	switch info.Status {
	case coordinator.RunCompleted:
		printer.Success("Run %s completed with score %.2f\n", info.ID[:8], info.Score)
	case coordinator.RunAborted:
		printer.Warning("Run %s was aborted\n", info.ID[:8])
	default:
		printer.Warning("Run %s %s\n", info.ID[:8], info.Status)
	}

	if board, err := coord.GetBlackboard(info.ID); err == nil {
		format.FormatBoard(os.Stdout, board)
	}
}

func readDocument(arg string) (text, docID string, err error) {
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("failed to read document from stdin: %w", err)
		}
		return string(data), "stdin", nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return "", "", printer.Error(
			"failed to read document",
			err.Error(),
			[]string{"Pass a readable file path, or - for stdin"},
		)
	}
	return string(data), filepath.Base(arg), nil
}

func truncateLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 70 {
		return s[:67] + "..."
	}
	return s
}
