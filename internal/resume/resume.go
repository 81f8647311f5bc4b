// Package resume handles "limit reached" solver terminations: it reports
// the captured continuation token, and when auto-continue is on, waits for
// the limit window to reset and re-invokes the solver with that token.
package resume

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ticketmill/drover/internal/solver"
	"github.com/ticketmill/drover/internal/types"
)

// Protocol supervises one solve invocation's limit handling.
type Protocol struct {
	Solver       solver.Solver
	AutoContinue bool
	Cushion      time.Duration // slack added after the parsed reset time
	Logf         func(format string, args ...interface{})

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a protocol around a solver adapter.
func New(sv solver.Solver, autoContinue bool, cushion time.Duration) *Protocol {
	return &Protocol{
		Solver:       sv,
		AutoContinue: autoContinue,
		Cushion:      cushion,
		Logf: func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		},
		now: time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// Handle inspects one attempt result. Non-limit results pass through
// untouched. On a limit, resume guidance is always printed; with
// auto-continue enabled and a reset time parsed, the protocol sleeps out
// the window and re-invokes the solver with the captured token, repeating
// if the resumed session hits the limit again.
func (p *Protocol) Handle(ctx context.Context, req solver.Request, res *types.AttemptResult) (*types.AttemptResult, error) {
	for res != nil && res.LimitReached {
		p.Logf("solver hit its usage limit")
		if res.SessionToken != "" {
			p.Logf("resume manually with: %s", ManualCommand(req, p.Solver.Name(), res.SessionToken))
		}
		if res.ResetClock != "" {
			p.Logf("limit resets at %s", res.ResetClock)
		}

		if !p.AutoContinue || res.ResetClock == "" || res.SessionToken == "" {
			return res, nil
		}

		wait := WaitUntilReset(p.now(), res.ResetClock) + p.Cushion
		p.Logf("auto-continue: sleeping %s until the limit resets", wait.Round(time.Second))
		if err := p.sleep(ctx, wait); err != nil {
			return res, err
		}

		req.ResumeToken = res.SessionToken
		next, err := p.Solver.Execute(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("resumed solve failed: %w", err)
		}
		res = next
	}
	return res, nil
}

// WaitUntilReset computes the duration from now until the next occurrence
// of the wall-clock time given in "15:04" form. A time already past today
// means tomorrow.
func WaitUntilReset(now time.Time, clock string) time.Duration {
	hour, minute := parseClock(clock)
	reset := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !reset.After(now) {
		reset = reset.Add(24 * time.Hour)
	}
	return reset.Sub(now)
}

func parseClock(clock string) (hour, minute int) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	hour, _ = strconv.Atoi(parts[0])
	minute, _ = strconv.Atoi(parts[1])
	return hour, minute
}

// ManualCommand renders the command a user runs to resume by hand.
func ManualCommand(req solver.Request, agent, token string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "drover solve %s --agent %s --resume %s", req.Item.URL, agent, token)
	if req.Branch != "" {
		fmt.Fprintf(&b, " --branch %s", req.Branch)
	}
	return b.String()
}
