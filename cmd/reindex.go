package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild index state from stored messages",
	Long: `Re-run correlation and metadata application for every message in the
index from its stored body. Useful after restoring an instance or
after a schema upgrade.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reindexRun()
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func reindexRun() error {
	ins, err := getInstance()
	if err != nil {
		return err
	}

	n, err := ins.Reindex(context.Background())
	if err != nil {
		return err
	}
	ui.Success("Reindexed %d messages", n)
	return nil
}
