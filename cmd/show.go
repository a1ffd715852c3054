package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gsliepen/lightbts/internal/engine"
	"github.com/gsliepen/lightbts/internal/mail"
	"github.com/gsliepen/lightbts/internal/output"
)

var showVerbose bool

var showCmd = &cobra.Command{
	Use:   "show <bug>|<message-id>",
	Short: "Show a bug or a message",
	Long: `Show a bug's state and its message thread. With a message id instead
of a bug number, show that stored message.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showRun(args[0])
	},
}

func init() {
	showCmd.Flags().BoolVar(&showVerbose, "messages", false, "Include full message bodies")
	rootCmd.AddCommand(showCmd)
}

func showRun(arg string) error {
	ins, err := getInstance()
	if err != nil {
		return err
	}

	if id, err := parseBugID(arg); err == nil {
		return showBug(ins, id)
	}
	return showMessage(ins, arg)
}

func showBug(ins *engine.Instance, id int64) error {
	ctx := context.Background()

	bug, err := ins.Index.GetBug(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(bugRef(bug.ID)), bug.Title)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(bug.Status.String()))
	fmt.Fprintf(ui.Out, "  Severity:   %s\n", output.SeverityColor(bug.Severity))
	fmt.Fprintf(ui.Out, "  Submitter:  %s\n", bug.Submitter)
	fmt.Fprintf(ui.Out, "  Date:       %s\n", bug.CreatedAt.Format("2006-01-02 15:04"))
	if bug.Owner != "" {
		fmt.Fprintf(ui.Out, "  Owner:      %s\n", bug.Owner)
	}
	if bug.Milestone != "" {
		fmt.Fprintf(ui.Out, "  Milestone:  %s\n", bug.Milestone)
	}
	if bug.Progress > 0 {
		fmt.Fprintf(ui.Out, "  Progress:   %d%%\n", bug.Progress)
	}
	if bug.Deadline != nil {
		fmt.Fprintf(ui.Out, "  Deadline:   %s\n", bug.Deadline.Format("2006-01-02 15:04"))
	}

	if tags, err := ins.Index.Tags(ctx, bug.ID); err == nil && len(tags) > 0 {
		fmt.Fprintf(ui.Out, "  Tags:       %s\n", strings.Join(tags, ", "))
	}
	if found, err := ins.Index.Versions(ctx, bug.ID, true); err == nil && len(found) > 0 {
		fmt.Fprintf(ui.Out, "  Found in:   %s\n", strings.Join(found, ", "))
	}
	if fixed, err := ins.Index.Versions(ctx, bug.ID, false); err == nil && len(fixed) > 0 {
		fmt.Fprintf(ui.Out, "  Fixed in:   %s\n", strings.Join(fixed, ", "))
	}

	if err := showLinks(ins, bug.ID); err != nil {
		return err
	}

	messages, err := ins.Index.Messages(ctx, bug.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(ui.Out)
	for _, m := range messages {
		marker := ""
		if m.Spam {
			marker = "  " + output.Red("[spam]")
		}
		fmt.Fprintf(ui.Out, "  %s  %s%s\n", m.Date.Format("2006-01-02 15:04"), m.ID, marker)
		if showVerbose {
			if err := printStoredBody(ins, m.ID); err != nil {
				ui.Warning("message %s: %v", m.ID, err)
			}
		}
	}
	return nil
}

// showLinks prints both directions of every relation, using the
// reverse name when this bug is on the receiving side. A bug linked to
// itself is stored but not worth displaying.
func showLinks(ins *engine.Instance, id int64) error {
	ctx := context.Background()

	links, err := ins.Index.Links(ctx, id)
	if err != nil {
		return err
	}
	for _, l := range links {
		if l.A == l.B {
			continue
		}
		fmt.Fprintf(ui.Out, "  %-11s %s\n", titleCase(l.Type.String())+":", bugRef(l.B))
	}

	reverse, err := ins.Index.ReverseLinks(ctx, id)
	if err != nil {
		return err
	}
	for _, l := range reverse {
		if l.A == l.B {
			continue
		}
		fmt.Fprintf(ui.Out, "  %-11s %s\n", titleCase(l.Type.ReverseString())+":", bugRef(l.A))
	}
	return nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func showMessage(ins *engine.Instance, msgid string) error {
	raw, err := ins.Store.Load(mail.Unquote(msgid))
	if err != nil {
		return err
	}
	fmt.Fprint(ui.Out, string(raw))
	return nil
}

func printStoredBody(ins *engine.Instance, msgid string) error {
	raw, err := ins.Store.Load(msgid)
	if err != nil {
		return err
	}
	msg, err := mail.Parse(raw)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(strings.TrimRight(msg.Body(), "\n"), "\n") {
		fmt.Fprintf(ui.Out, "    | %s\n", line)
	}
	fmt.Fprintln(ui.Out)
	return nil
}
