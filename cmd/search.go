package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gsliepen/lightbts/internal/output"
)

var searchCmd = &cobra.Command{
	Use:   "search <term>...",
	Short: "Search bugs by title",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return searchRun(strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func searchRun(term string) error {
	ins, err := getInstance()
	if err != nil {
		return err
	}

	bugs, err := ins.Index.SearchBugs(context.Background(), term)
	if err != nil {
		return err
	}

	if len(bugs) == 0 {
		ui.Info("No bugs match %q.", term)
		return nil
	}

	table := ui.Table([]string{"ID", "Status", "Severity", "Title"})
	for _, bug := range bugs {
		_ = table.Append([]string{
			bugRef(bug.ID),
			output.StatusColor(bug.Status.String()),
			output.SeverityColor(bug.Severity),
			bug.Title,
		})
	}
	_ = table.Render()
	return nil
}
