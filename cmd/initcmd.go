package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gsliepen/lightbts/internal/engine"
)

var (
	initProject string
	initAdmin   string
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a new instance",
	Long: `Create an instance directory with a default configuration, an empty
index and an empty message store. Without <dir>, the instance is
created in the data directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := instanceDir()
		if len(args) > 0 {
			dir = args[0]
		}
		return initRun(dir)
	},
}

func init() {
	initCmd.Flags().StringVar(&initProject, "project", "", "Project name")
	initCmd.Flags().StringVar(&initAdmin, "admin", "", "Administrator email address")
	rootCmd.AddCommand(initCmd)
}

func initRun(dir string) error {
	if err := engine.Init(dir, initProject, initAdmin); err != nil {
		return err
	}
	ui.Success("Initialized LightBTS instance in %s", dir)
	return nil
}
