package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gsliepen/lightbts/internal/output"
)

var replyMessage string

var replyCmd = &cobra.Command{
	Use:   "reply <bug>",
	Short: "Add a message to a bug",
	Long: `Add a followup message to an existing bug. The text comes from -m,
from stdin when piped, or from $EDITOR. Control directives at the top
of the text are applied to the bug.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return replyRun(args[0])
	},
}

func init() {
	replyCmd.Flags().StringVarP(&replyMessage, "message", "m", "", "Message text")
	rootCmd.AddCommand(replyCmd)
}

func replyRun(arg string) error {
	id, err := parseBugID(arg)
	if err != nil {
		return err
	}

	text, err := composeText(replyMessage)
	if err != nil {
		return err
	}

	ins, err := getInstance()
	if err != nil {
		return err
	}

	bug, err := ins.Reply(context.Background(), senderAddress(), id, text)
	if err != nil {
		return err
	}

	ui.Success("Added message to bug %s: %s", output.Cyan(bugRef(bug.ID)), bug.Title)
	return nil
}
