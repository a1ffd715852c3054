package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gsliepen/lightbts/internal/output"
)

var createMessage string

var createCmd = &cobra.Command{
	Use:   "create <title>...",
	Short: "File a new bug",
	Long: `File a new bug with the given title. The report text comes from -m,
from stdin when piped, or from $EDITOR. Control directives at the top
of the text are applied to the new bug.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return createRun(strings.Join(args, " "))
	},
}

func init() {
	createCmd.Flags().StringVarP(&createMessage, "message", "m", "", "Report text")
	rootCmd.AddCommand(createCmd)
}

func createRun(title string) error {
	text, err := composeText(createMessage)
	if err != nil {
		return err
	}

	ins, err := getInstance()
	if err != nil {
		return err
	}

	bug, err := ins.Create(context.Background(), senderAddress(), title, text)
	if err != nil {
		return err
	}

	ui.Success("Created bug %s: %s", output.Cyan(bugRef(bug.ID)), bug.Title)
	return nil
}
