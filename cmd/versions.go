package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

// versionDirective builds a command whose only job is recording which
// versions a bug was found in or fixed in.
func versionDirective(use, short, key string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return bugAction(args[0], key+": "+strings.Join(args[1:], " "))
		},
	}
}

func init() {
	rootCmd.AddCommand(versionDirective("found <bug> <version>...", "Record versions a bug was found in", "Found"))
	rootCmd.AddCommand(versionDirective("notfound <bug> <version>...", "Retract a found-in record", "Notfound"))
	rootCmd.AddCommand(versionDirective("fixed <bug> <version>...", "Record versions a bug was fixed in", "Fixed"))
	rootCmd.AddCommand(versionDirective("notfixed <bug> <version>...", "Retract a fixed-in record", "Notfixed"))
}
