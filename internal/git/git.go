// Package git provides the few git operations drover needs: detecting
// uncommitted work, branch management, and pushing solve branches.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Ops runs git against a single working directory.
type Ops struct {
	dir string
}

// New returns git operations rooted at dir ("." when empty).
func New(dir string) *Ops {
	if dir == "" {
		dir = "."
	}
	return &Ops{dir: dir}
}

func (g *Ops) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// IsRepo reports whether dir is inside a git work tree.
func (g *Ops) IsRepo(ctx context.Context) bool {
	out, err := g.git(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// HasChanges reports whether the working tree has uncommitted changes,
// including untracked files.
func (g *Ops) HasChanges(ctx context.Context) (bool, error) {
	out, err := g.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// CurrentBranch returns the checked-out branch name.
func (g *Ops) CurrentBranch(ctx context.Context) (string, error) {
	return g.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// CreateBranch creates and checks out a branch. If the branch already
// exists it is checked out as-is, which is what a resumed solve wants.
func (g *Ops) CreateBranch(ctx context.Context, name string) error {
	if _, err := g.git(ctx, "checkout", "-b", name); err == nil {
		return nil
	}
	_, err := g.git(ctx, "checkout", name)
	if err != nil {
		return fmt.Errorf("creating branch %s: %w", name, err)
	}
	return nil
}

// Push pushes the branch to origin, setting upstream on first push.
func (g *Ops) Push(ctx context.Context, branch string) error {
	_, err := g.git(ctx, "push", "--set-upstream", "origin", branch)
	return err
}
