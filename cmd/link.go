package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gsliepen/lightbts/internal/models"
)

var linkCmd = &cobra.Command{
	Use:   "link <bug> <type> <bug>...",
	Short: "Relate bugs to each other",
	Long: `Record a relation between bugs. Types: relates, duplicates, depends,
blocks. The relation is read left to right: "lbt link 3 blocks 7"
means bug 3 blocks bug 7.`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return linkRun(args, false)
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink <bug> <type> <bug>...",
	Short: "Remove a relation between bugs",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return linkRun(args, true)
	},
}

func init() {
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(unlinkCmd)
}

func linkRun(args []string, remove bool) error {
	typ, err := models.ParseLinkType(strings.ToLower(args[1]))
	if err != nil {
		return err
	}
	for _, ref := range args[2:] {
		if _, err := parseBugID(ref); err != nil {
			return err
		}
	}

	key := typ.String()
	if remove {
		key = "un" + key
	}
	return bugAction(args[0], fmt.Sprintf("%s: %s", titleCase(key), strings.Join(args[2:], " ")))
}
