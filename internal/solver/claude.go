package solver

import (
	"context"

	"github.com/ticketmill/drover/internal/types"
)

// ClaudeSolver drives the Claude Code CLI.
type ClaudeSolver struct{}

func (ClaudeSolver) Name() string    { return "claude" }
func (ClaudeSolver) Command() string { return "claude" }

func (s ClaudeSolver) Execute(ctx context.Context, req Request) (*types.AttemptResult, error) {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	}
	if req.ResumeToken != "" {
		args = append(args, "--resume", req.ResumeToken)
	}
	args = append(args, BuildPrompt(req))
	return runAgent(ctx, req, "claude", args)
}
