package solver

import (
	"context"

	"github.com/ticketmill/drover/internal/types"
)

// AmpSolver drives the Sourcegraph amp CLI.
type AmpSolver struct{}

func (AmpSolver) Name() string    { return "amp" }
func (AmpSolver) Command() string { return "amp" }

func (s AmpSolver) Execute(ctx context.Context, req Request) (*types.AttemptResult, error) {
	// amp requires --execute for single-shot execution mode.
	args := []string{
		"--dangerously-allow-all",
		"--execute", BuildPrompt(req),
		"--stream-json",
	}
	if req.ResumeToken != "" {
		args = append(args, "--thread", req.ResumeToken)
	}
	return runAgent(ctx, req, "amp", args)
}
