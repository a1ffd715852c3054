package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gsliepen/lightbts/internal/mail"
	"github.com/gsliepen/lightbts/internal/metadata"
	"github.com/gsliepen/lightbts/internal/models"
)

// Every state-changing command goes through bugAction, which files the
// change as a control message. That keeps the mailed-in and local
// paths identical: same hooks, same notifications, same audit trail in
// the message store.

var closeCmd = &cobra.Command{
	Use:   "close <bug>",
	Short: "Close a bug",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugAction(args[0], "Status: closed")
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen <bug>",
	Short: "Reopen a closed bug",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugAction(args[0], "Status: open")
	},
}

var retitleCmd = &cobra.Command{
	Use:   "retitle <bug> <title>...",
	Short: "Change a bug's title",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugAction(args[0], "Title: "+strings.Join(args[1:], " "))
	},
}

var severityCmd = &cobra.Command{
	Use:   "severity <bug> <severity>",
	Short: "Change a bug's severity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := models.ParseSeverity(args[1]); err != nil {
			return err
		}
		return bugAction(args[0], "Severity: "+args[1])
	},
}

var ownerCmd = &cobra.Command{
	Use:   "owner <bug> <address>",
	Short: "Assign a bug to someone",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugAction(args[0], "Owner: "+args[1])
	},
}

var noOwnerCmd = &cobra.Command{
	Use:   "noowner <bug>",
	Short: "Remove a bug's owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugAction(args[0], "Owner: -")
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress <bug> <percentage>",
	Short: "Record how far along a fix is",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugAction(args[0], "Progress: "+args[1])
	},
}

var milestoneCmd = &cobra.Command{
	Use:   "milestone <bug> [name]",
	Short: "Set or clear a bug's milestone",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		return bugAction(args[0], "Milestone: "+name)
	},
}

var deadlineCmd = &cobra.Command{
	Use:   "deadline <bug> <date>...",
	Short: "Set or clear a bug's deadline",
	Long:  `Set a deadline, e.g. "2026-09-30" or "2026-09-30 17:00". Use "-" to clear it.`,
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := strings.Join(args[1:], " ")
		if value != "-" {
			if _, err := metadata.ParseDeadline(value); err != nil {
				return err
			}
		}
		return bugAction(args[0], "Deadline: "+value)
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags <bug> <tag>...",
	Short: "Add or remove tags",
	Long: `Modify a bug's tags. Prefix a tag with + to add (the default), - to
remove, or = to replace the whole set, e.g.: lbt tags 17 +urgent -wontfix`,
	Aliases: []string{"tag"},
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bugAction(args[0], "Tags: "+strings.Join(args[1:], " "))
	},
}

var spamCmd = &cobra.Command{
	Use:   "spam <message-id>",
	Short: "Mark a message as spam",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return spamRun(args[0], true)
	},
}

var hamCmd = &cobra.Command{
	Use:   "ham <message-id>",
	Short: "Clear a message's spam flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return spamRun(args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(reopenCmd)
	rootCmd.AddCommand(retitleCmd)
	rootCmd.AddCommand(severityCmd)
	rootCmd.AddCommand(ownerCmd)
	rootCmd.AddCommand(noOwnerCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(milestoneCmd)
	rootCmd.AddCommand(deadlineCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(spamCmd)
	rootCmd.AddCommand(hamCmd)
}

func spamRun(msgid string, spam bool) error {
	ins, err := getInstance()
	if err != nil {
		return err
	}

	if err := ins.Index.SetSpam(context.Background(), mail.Unquote(msgid), spam); err != nil {
		return err
	}
	state := "ham"
	if spam {
		state = "spam"
	}
	ui.Success("Marked %s as %s", msgid, state)
	return nil
}
