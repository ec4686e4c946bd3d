package commands

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyluth/drey/internal/format"
	"github.com/dyluth/drey/internal/printer"
	"github.com/dyluth/drey/internal/store"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show one archived run and its board",
	Long: `Show the details of one archived run: status, history, and the review
board with assessments and proposed redlines.

Supports short IDs (e.g. "abc123" instead of the full UUID) as long as
the prefix is unambiguous.

Examples:
  # Human-readable board summary
  drey show abc123

  # Full run record as JSON
  drey show abc123 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the full run record as pretty JSON")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	archive, err := archiveClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	runID, err := resolveRunID(ctx, archive, args[0])
	if err != nil {
		return err
	}

	info, err := archive.GetRun(ctx, runID)
	if err != nil {
		if store.IsNotFound(err) {
			return printer.Error(
				"run not found",
				"No archived run matches "+args[0],
				[]string{"Run 'drey list' to see archived runs"},
			)
		}
		return err
	}

	if showJSON {
		return format.FormatSingleJSON(os.Stdout, info)
	}

	printer.Info("Run %s  document=%s  path=%s  status=%s  score=%.2f\n\n",
		info.ID[:8], info.DocID, info.Path, info.Status, info.Score)

	board, err := archive.GetBoard(ctx, runID)
	if err != nil {
		if store.IsNotFound(err) {
			printer.Warning("no board archived for this run\n")
			return nil
		}
		return err
	}
	format.FormatBoard(os.Stdout, board)
	return nil
}

// resolveRunID expands a short ID prefix to the full archived run ID.
func resolveRunID(ctx context.Context, archive *store.Client, prefix string) (string, error) {
	runs, err := archive.ListRuns(ctx)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, r := range runs {
		if strings.HasPrefix(r.ID, prefix) {
			matches = append(matches, r.ID)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return prefix, nil // let the lookup report not-found
	default:
		return "", printer.Error(
			"ambiguous run ID",
			"Multiple archived runs match prefix "+prefix,
			[]string{"Use more characters of the ID"},
		)
	}
}
