package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// bugRef formats a bug id the way it appears in mail subjects.
func bugRef(id int64) string {
	return fmt.Sprintf("#%d", id)
}

// parseBugID accepts "17" or "#17".
func parseBugID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid bug number %q", arg)
	}
	return id, nil
}

// bugAction records an action against a bug by importing a reply whose
// body consists of the given control directives. This is the same path
// a mailed-in directive takes, so hooks and notifications apply.
func bugAction(arg string, directives ...string) error {
	id, err := parseBugID(arg)
	if err != nil {
		return err
	}

	ins, err := getInstance()
	if err != nil {
		return err
	}

	body := strings.Join(directives, "\n") + "\n"
	if _, err := ins.Reply(context.Background(), senderAddress(), id, body); err != nil {
		return err
	}
	for _, d := range directives {
		ui.Success("Bug %s: %s", bugRef(id), d)
	}
	return nil
}
