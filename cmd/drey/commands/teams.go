package commands

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/dyluth/drey/internal/printer"
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List configured agent paths and their teams",
	Long: `List the agent paths from drey.yml: the team each path runs, its
collaboration pattern, its agents, and its approval gates.`,
	RunE: runTeams,
}

func init() {
	rootCmd.AddCommand(teamsCmd)
}

func runTeams(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(cfg.Paths))
	for name := range cfg.Paths {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := cfg.Paths[name]
		printer.Info("%s: team %q (%s)\n", name, p.Team.Name, p.Team.Pattern)
		for i, a := range p.Team.Agents {
			marker := " "
			if p.Team.Pattern == "manager_worker" && i == 0 {
				marker = "*" // manager
			}
			if a.Replicas > 1 {
				printer.Printf("  %s %s (%s) x%d\n", marker, a.Name, a.Kind, a.Replicas)
			} else {
				printer.Printf("  %s %s (%s)\n", marker, a.Name, a.Kind)
			}
		}
		for _, g := range p.Gates {
			when := g.When
			if when == "" {
				when = "always"
			}
			printer.Printf("    gate %s after %s when %s\n", g.Stage, g.After, when)
		}
	}

	return nil
}
