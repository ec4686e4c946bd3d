package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/drey/internal/format"
	"github.com/dyluth/drey/internal/printer"
)

var listOutputFormat string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs",
	Long: `List archived runs for this instance, newest first.

Output Formats:
  default - Human-readable table with ID, document, path, status and score
  jsonl   - Line-delimited JSON, one run per line, ready for jq

Examples:
  # List all runs
  drey list

  # Completed runs as JSONL
  drey list --output=jsonl | jq 'select(.status=="completed") | .id'`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if listOutputFormat != "default" && listOutputFormat != "jsonl" {
		return printer.Error(
			"invalid output format",
			"Unknown format: "+listOutputFormat,
			[]string{"Valid formats: default, jsonl"},
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	archive, err := archiveClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	runs, err := archive.ListRuns(ctx)
	if err != nil {
		return err
	}

	if listOutputFormat == "jsonl" {
		return format.FormatRunJSONL(os.Stdout, runs)
	}
	format.FormatRunTable(os.Stdout, runs, cfg.Instance)
	return nil
}
