package solver

import (
	"context"

	"github.com/ticketmill/drover/internal/types"
)

// AiderSolver drives the aider CLI.
type AiderSolver struct{}

func (AiderSolver) Name() string    { return "aider" }
func (AiderSolver) Command() string { return "aider" }

func (s AiderSolver) Execute(ctx context.Context, req Request) (*types.AttemptResult, error) {
	args := []string{
		"--yes-always",
		"--no-auto-commits",
		"--message", BuildPrompt(req),
	}
	if req.ResumeToken != "" {
		args = append(args, "--restore-chat-history")
	}
	return runAgent(ctx, req, "aider", args)
}
