// Package solver wraps external coding-agent CLIs behind a single Execute
// contract. Each adapter builds a prompt, spawns its agent process, streams
// output through the classifier, and reports an AttemptResult. Adapters are
// selected from a registry by name; the core never branches on agent type.
package solver

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ticketmill/drover/internal/types"
)

// Request carries everything one solve attempt needs.
type Request struct {
	Item   types.WorkItem
	Branch string
	Dir    string

	// Feedback is reviewer input appended to the prompt on watch restarts.
	Feedback string

	// ResumeToken continues a previously paused session when supported.
	ResumeToken string

	Attempt int
	Timeout time.Duration

	// Output, when set, receives every streamed line. Progress surfacing
	// only; it is not part of the control contract.
	Output io.Writer
}

// Solver is one coding-agent adapter.
type Solver interface {
	Name() string

	// Command is the binary the adapter spawns; doctor probes PATH for it.
	Command() string

	Execute(ctx context.Context, req Request) (*types.AttemptResult, error)
}

// BuildPrompt renders the instruction text handed to the agent.
func BuildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resolve the following GitHub issue.\n\n")
	fmt.Fprintf(&b, "Issue: %s\n", req.Item.URL)
	if req.Item.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", req.Item.Title)
	}
	if req.Branch != "" {
		fmt.Fprintf(&b, "Work on branch %s.\n", req.Branch)
	}
	b.WriteString("\nRead the issue with the gh CLI, implement the fix, run the tests, ")
	b.WriteString("commit your work, and open a pull request that references the issue.\n")
	if req.Feedback != "" {
		b.WriteString("\nNew reviewer feedback to address:\n")
		b.WriteString(req.Feedback)
		b.WriteString("\n")
	}
	return b.String()
}
