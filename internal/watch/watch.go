// Package watch polls a solved item's pull request for reviewer feedback
// and restarts the solver until the PR merges or, in temporary mode, the
// working tree settles.
package watch

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ticketmill/drover/internal/gh"
	"github.com/ticketmill/drover/internal/solver"
	"github.com/ticketmill/drover/internal/types"
)

// State is the machine's externally visible state.
type State string

const (
	StateActive     State = "ACTIVE"
	StateRestarting State = "RESTARTING"
	StateMerged     State = "MERGED"  // terminal: resolution accepted
	StateSettled    State = "SETTLED" // terminal: temporary mode, tree clean
)

// Tracker is the slice of the gh client the watcher needs.
type Tracker interface {
	CheckPR(ctx context.Context, prURL string) (*gh.PRState, error)
	ListComments(ctx context.Context, repo types.RepoRef, number int, since time.Time) ([]gh.Comment, error)
	ListReviews(ctx context.Context, repo types.RepoRef, number int, since time.Time) ([]gh.Comment, error)
}

// WorkTree reports local uncommitted state.
type WorkTree interface {
	HasChanges(ctx context.Context) (bool, error)
}

// Session ties one resolution to its source item and branch.
type Session struct {
	Item   types.WorkItem
	PRURL  string // may be empty in temporary mode before a PR exists
	Branch string

	// Temporary marks a session entered only to settle uncommitted
	// changes; it ends as soon as the tree is clean.
	Temporary bool
}

// Config tunes one watch machine.
type Config struct {
	Interval time.Duration
	Logf     func(format string, args ...interface{})

	// MaxTicks bounds the loop for tests; 0 means unbounded.
	MaxTicks int
}

// Machine runs the watch loop for one session.
type Machine struct {
	tracker Tracker
	tree    WorkTree
	solve   solver.Solver
	req     solver.Request
	session Session
	cfg     Config

	sleep func(ctx context.Context, d time.Duration)
}

// New builds a watch machine. req is the template request re-sent to the
// solver on each restart, with feedback filled in per tick.
func New(tracker Tracker, tree WorkTree, solve solver.Solver, req solver.Request, session Session, cfg Config) *Machine {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Logf == nil {
		cfg.Logf = func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
	return &Machine{
		tracker: tracker,
		tree:    tree,
		solve:   solve,
		req:     req,
		session: session,
		cfg:     cfg,
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		},
	}
}

// Run executes the loop until a terminal state or context cancellation.
func (m *Machine) Run(ctx context.Context) (State, error) {
	// A non-temporary session with no PR has nothing to observe and no
	// reachable terminal state; refuse instead of idling forever.
	if !m.session.Temporary && m.session.PRURL == "" {
		return StateActive, fmt.Errorf("no pull request to watch for %s", m.session.Item.URL)
	}

	state := StateActive
	lastCheck := time.Now()
	first := true

	for tick := 0; ; tick++ {
		if m.cfg.MaxTicks > 0 && tick >= m.cfg.MaxTicks {
			return state, fmt.Errorf("watch gave up after %d ticks", tick)
		}
		if ctx.Err() != nil {
			return state, ctx.Err()
		}

		// The merged check always runs first, in every mode.
		if m.session.PRURL != "" {
			pr, err := m.tracker.CheckPR(ctx, m.session.PRURL)
			if err != nil {
				// Non-fatal: log and try again next tick.
				m.cfg.Logf("watch: PR check failed: %v", err)
				m.sleep(ctx, m.cfg.Interval)
				first = false
				continue
			}
			if pr.Merged {
				m.cfg.Logf("watch: %s merged", m.session.PRURL)
				return StateMerged, nil
			}
		}

		// Temporary sessions end once the tree is clean, but never on the
		// first tick: the machine was entered precisely because changes
		// existed, and the first restart has to happen before a clean tree
		// means anything.
		if m.session.Temporary && !first {
			changed, err := m.tree.HasChanges(ctx)
			if err != nil {
				m.cfg.Logf("watch: worktree check failed: %v", err)
			} else if !changed {
				m.cfg.Logf("watch: no uncommitted changes remain")
				return StateSettled, nil
			}
		}

		feedback, err := m.gatherFeedback(ctx, first, lastCheck)
		if err != nil {
			m.cfg.Logf("watch: feedback check failed: %v", err)
		} else if feedback != "" {
			state = StateRestarting
			m.cfg.Logf("watch: feedback detected, restarting solver")
			req := m.req
			req.Feedback = feedback
			restartedAt := time.Now()
			if _, err := m.solve.Execute(ctx, req); err != nil {
				m.cfg.Logf("watch: solver restart failed: %v", err)
			}
			// Taken before the restart: comments posted while the solver
			// ran must surface on the next tick.
			lastCheck = restartedAt
			state = StateActive
		}

		first = false
		m.sleep(ctx, m.cfg.Interval)
	}
}

// gatherFeedback collects reviewer input since the last check. On the very
// first tick of a temporary session, the uncommitted changes themselves
// count as feedback.
func (m *Machine) gatherFeedback(ctx context.Context, first bool, since time.Time) (string, error) {
	if m.session.Temporary && first {
		changed, err := m.tree.HasChanges(ctx)
		if err != nil {
			return "", err
		}
		if changed {
			return "There are uncommitted changes in the working tree. Review them, finish any incomplete work, commit, and push.", nil
		}
		return "", nil
	}
	if m.session.PRURL == "" {
		return "", nil
	}

	_, prNumber, err := parsePRURL(m.session.PRURL)
	if err != nil {
		return "", err
	}

	comments, err := m.tracker.ListComments(ctx, m.session.Item.Repo, prNumber, since)
	if err != nil {
		return "", err
	}
	reviews, err := m.tracker.ListReviews(ctx, m.session.Item.Repo, prNumber, since)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, c := range append(comments, reviews...) {
		fmt.Fprintf(&b, "%s: %s\n", c.Author, c.Body)
	}
	return b.String(), nil
}

// parsePRURL extracts repo and number from a pull-request URL.
func parsePRURL(url string) (types.RepoRef, int, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	trimmed = strings.TrimPrefix(trimmed, "github.com/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 4 || parts[2] != "pull" {
		return types.RepoRef{}, 0, fmt.Errorf("invalid PR URL %q", url)
	}
	var number int
	if _, err := fmt.Sscanf(parts[3], "%d", &number); err != nil || number <= 0 {
		return types.RepoRef{}, 0, fmt.Errorf("invalid PR number in %q", url)
	}
	return types.RepoRef{Owner: parts[0], Name: parts[1]}, number, nil
}
