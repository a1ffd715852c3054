package cmd

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
)

// composeText returns the message text for create/reply: the -m flag
// if given, otherwise stdin when piped, otherwise $EDITOR on a
// scratch file.
func composeText(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read message from stdin: %w", err)
		}
		return string(data), nil
	}

	if batch {
		return "", fmt.Errorf("no message given: use -m or pipe text on stdin")
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return "", fmt.Errorf("no message given: use -m, pipe text on stdin, or set $EDITOR")
	}

	dir, err := os.MkdirTemp("", "lbt-compose")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "message.txt")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		return "", err
	}

	editCmd := exec.Command(editor, path)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	if err := editCmd.Run(); err != nil {
		return "", fmt.Errorf("editor: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty message, aborting")
	}
	return text, nil
}
