// Package gh talks to GitHub through the gh CLI: issue discovery with
// rate-limit awareness, bulk linked-PR checks, and the handful of mutations
// drover needs (comments, PR creation). Every call goes through the Runner
// seam so tests never touch the network.
package gh

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes one gh invocation and returns its stdout.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// CLIRunner shells out to the gh binary on PATH.
type CLIRunner struct {
	// Dir, when set, is the working directory for gh invocations. Repo-less
	// commands (search, api) don't care; pr commands do.
	Dir string
}

// Run executes gh with the given arguments. On a non-zero exit the error
// includes captured stderr, which is what the rate-limit classifier keys on.
func (r *CLIRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("gh %s: %w: %s", strings.Join(args, " "), err, msg)
	}
	return stdout.Bytes(), nil
}
