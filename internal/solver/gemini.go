package solver

import (
	"context"

	"github.com/ticketmill/drover/internal/types"
)

// GeminiSolver drives the Gemini CLI.
type GeminiSolver struct{}

func (GeminiSolver) Name() string    { return "gemini" }
func (GeminiSolver) Command() string { return "gemini" }

func (s GeminiSolver) Execute(ctx context.Context, req Request) (*types.AttemptResult, error) {
	// The Gemini CLI has no session resume; a resume token is ignored and
	// the prompt simply restates the task.
	args := []string{"--yolo", "--prompt", BuildPrompt(req)}
	return runAgent(ctx, req, "gemini", args)
}
