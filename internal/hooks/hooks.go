// Package hooks invokes external pre/post-indexing programs
// synchronously around the import transaction. Hooks are optional: a
// hook that does not exist or cannot be started counts as success. A
// pre-index hook exiting non-zero vetoes the import.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Hook names recognized under the hooks directory.
const (
	PreIndex  = "pre-index"
	PostIndex = "post-index"
)

// ErrVeto is returned when a hook exits non-zero.
var ErrVeto = errors.New("hook refused")

// Request carries the environment contract for a hook invocation.
// BugID is 0 when the bug is not yet known (pre-index).
type Request struct {
	MessagePath string
	BugID       int64
}

// Runner invokes hooks from Dir with working directory BaseDir.
type Runner struct {
	Dir      string // hooks directory
	BaseDir  string // instance root, the hook's working directory
	Disabled bool
}

// Run executes the named hook. It returns nil when hooks are disabled,
// when the hook is absent or not startable, and when the hook exits 0.
// A non-zero exit returns ErrVeto wrapped with the exit code; the
// caller decides whether that aborts (pre-index) or is only logged
// (post-index).
func (r *Runner) Run(ctx context.Context, name string, req Request) error {
	if r.Disabled {
		return nil
	}

	path := filepath.Join(r.Dir, name)
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	cmd := exec.CommandContext(ctx, path)
	cmd.Dir = r.BaseDir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	env := append(os.Environ(),
		"LIGHTBTS_DIR="+r.BaseDir,
		"LIGHTBTS_MESSAGE="+req.MessagePath,
	)
	if req.BugID > 0 {
		env = append(env, "LIGHTBTS_BUG="+strconv.FormatInt(req.BugID, 10))
	}
	cmd.Env = env

	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: %s exited with status %d", ErrVeto, name, exitErr.ExitCode())
	}
	// Hooks are not a hard dependency: a hook that cannot be started
	// at all is treated as success.
	return nil
}
