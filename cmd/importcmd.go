package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gsliepen/lightbts/internal/engine"
	"github.com/gsliepen/lightbts/internal/index"
	"github.com/gsliepen/lightbts/internal/mail"
	"github.com/gsliepen/lightbts/internal/output"
)

var importCmd = &cobra.Command{
	Use:   "import [file]...",
	Short: "Import mail messages",
	Long: `Run RFC822 messages through the indexing pipeline. Without arguments
a single message is read from stdin, which is how a mail delivery
agent hands messages to the tracker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return importRun(args)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func importRun(args []string) error {
	ins, err := getInstance()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if len(args) == 0 {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read message from stdin: %w", err)
		}
		return importOne(ctx, ins, "stdin", raw)
	}

	for _, path := range args {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := importOne(ctx, ins, path, raw); err != nil {
			return err
		}
	}
	return nil
}

func importOne(ctx context.Context, ins *engine.Instance, name string, raw []byte) error {
	msg, err := mail.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	bug, isNew, err := ins.Import(ctx, msg)
	switch {
	case errors.Is(err, index.ErrDuplicate):
		ui.Info("%s: already imported", name)
		return nil
	case err != nil:
		return fmt.Errorf("%s: %w", name, err)
	}

	if isNew {
		ui.Success("%s: created bug %s: %s", name, output.Cyan(bugRef(bug.ID)), bug.Title)
	} else {
		ui.Success("%s: added to bug %s", name, output.Cyan(bugRef(bug.ID)))
	}
	return nil
}
