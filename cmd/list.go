package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gsliepen/lightbts/internal/index"
	"github.com/gsliepen/lightbts/internal/models"
	"github.com/gsliepen/lightbts/internal/output"
)

var listCmd = &cobra.Command{
	Use:   "list [selector]...",
	Short: "List bugs",
	Long: `List bugs. Selectors narrow the listing: "open", "closed" or "all"
select by status, a severity name selects by severity, and anything
else selects by tag. Without selectors, open bugs are listed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRun(args)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// parseSelectors maps listing arguments onto a filter, defaulting to
// open bugs when no status selector is present.
func parseSelectors(args []string) index.Filter {
	var filter index.Filter
	statusSet := false

	for _, arg := range args {
		switch strings.ToLower(arg) {
		case "all":
			statusSet = true
			continue
		case "open", "closed":
			status, _ := models.ParseStatus(strings.ToLower(arg))
			filter.Status = &status
			statusSet = true
			continue
		}
		if severity, err := models.ParseSeverity(strings.ToLower(arg)); err == nil {
			filter.Severities = append(filter.Severities, severity)
			continue
		}
		filter.Tags = append(filter.Tags, arg)
	}

	if !statusSet {
		open := models.StatusOpen
		filter.Status = &open
	}
	return filter
}

func listRun(args []string) error {
	ins, err := getInstance()
	if err != nil {
		return err
	}

	bugs, err := ins.Index.ListBugs(context.Background(), parseSelectors(args))
	if err != nil {
		return err
	}

	if len(bugs) == 0 {
		ui.Info("No bugs found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Status", "Severity", "Age", "Progress", "Deadline", "Title"})
	for _, bug := range bugs {
		progress := ""
		if bug.Progress > 0 {
			progress = fmt.Sprintf("%d%%", bug.Progress)
		}
		deadline := ""
		if bug.Deadline != nil {
			deadline = bug.Deadline.Format("2006-01-02")
		}
		_ = table.Append([]string{
			bugRef(bug.ID),
			output.StatusColor(bug.Status.String()),
			output.SeverityColor(bug.Severity),
			formatAge(bug.CreatedAt),
			progress,
			deadline,
			bug.Title,
		})
	}
	_ = table.Render()
	return nil
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
