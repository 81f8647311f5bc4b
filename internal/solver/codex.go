package solver

import (
	"context"

	"github.com/ticketmill/drover/internal/types"
)

// CodexSolver drives the OpenAI Codex CLI.
type CodexSolver struct{}

func (CodexSolver) Name() string    { return "codex" }
func (CodexSolver) Command() string { return "codex" }

func (s CodexSolver) Execute(ctx context.Context, req Request) (*types.AttemptResult, error) {
	args := []string{"exec", "--json", "--full-auto"}
	if req.ResumeToken != "" {
		args = append(args, "resume", req.ResumeToken)
	}
	args = append(args, BuildPrompt(req))
	return runAgent(ctx, req, "codex", args)
}
