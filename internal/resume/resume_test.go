package resume

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketmill/drover/internal/solver"
	"github.com/ticketmill/drover/internal/types"
)

type scriptedSolver struct {
	mu      sync.Mutex
	results []*types.AttemptResult
	reqs    []solver.Request
}

func (s *scriptedSolver) Name() string    { return "claude" }
func (s *scriptedSolver) Command() string { return "claude" }

func (s *scriptedSolver) Execute(ctx context.Context, req solver.Request) (*types.AttemptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	res := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return res, nil
}

func testRequest() solver.Request {
	return solver.Request{
		Item:   types.WorkItem{URL: "https://github.com/octo-org/api/issues/7"},
		Branch: "drover/issue-7",
	}
}

func TestWaitUntilReset(t *testing.T) {
	loc := time.FixedZone("test", 0)

	// "12-hour limit reached, resets at 3:30pm" parses to 15:30; from
	// 10:00 the wait is five and a half hours.
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, loc)
	clock, ok := solver.ParseResetClock("12-hour limit reached, resets at 3:30pm")
	require.True(t, ok)
	require.Equal(t, "15:30", clock)
	assert.Equal(t, 5*time.Hour+30*time.Minute, WaitUntilReset(now, clock))

	// Already past today: next occurrence is tomorrow.
	evening := time.Date(2026, 3, 2, 18, 0, 0, 0, loc)
	assert.Equal(t, 21*time.Hour+30*time.Minute, WaitUntilReset(evening, "15:30"))

	// Exactly at the reset time also rolls to tomorrow.
	at := time.Date(2026, 3, 2, 15, 30, 0, 0, loc)
	assert.Equal(t, 24*time.Hour, WaitUntilReset(at, "15:30"))
}

func TestNonLimitResultPassesThrough(t *testing.T) {
	sv := &scriptedSolver{}
	p := New(sv, true, time.Minute)
	p.Logf = func(string, ...interface{}) {}

	in := &types.AttemptResult{Success: true}
	out, err := p.Handle(context.Background(), testRequest(), in)
	require.NoError(t, err)
	assert.Same(t, in, out)
	assert.Empty(t, sv.reqs, "solver must not be re-invoked")
}

func TestManualModeReportsWithoutSleeping(t *testing.T) {
	sv := &scriptedSolver{}
	p := New(sv, false, time.Minute)

	var logs []string
	p.Logf = func(format string, args ...interface{}) {
		logs = append(logs, format)
	}
	slept := false
	p.sleep = func(context.Context, time.Duration) error {
		slept = true
		return nil
	}

	res := &types.AttemptResult{
		LimitReached: true,
		SessionToken: "sess-1",
		ResetClock:   "15:30",
	}
	out, err := p.Handle(context.Background(), testRequest(), res)
	require.NoError(t, err)
	assert.True(t, out.LimitReached)
	assert.False(t, slept)
	assert.Empty(t, sv.reqs)

	// Guidance is always printed: the manual command and the reset time.
	joined := ""
	for _, l := range logs {
		joined += l + "\n"
	}
	assert.Contains(t, joined, "resume manually with")
	assert.Contains(t, joined, "limit resets at")
}

func TestAutoContinueSleepsAndResumes(t *testing.T) {
	sv := &scriptedSolver{results: []*types.AttemptResult{{Success: true}}}
	p := New(sv, true, time.Minute)
	p.Logf = func(string, ...interface{}) {}

	loc := time.FixedZone("test", 0)
	p.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, loc) }

	var slept time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	res := &types.AttemptResult{
		LimitReached: true,
		SessionToken: "sess-42",
		ResetClock:   "15:30",
	}
	out, err := p.Handle(context.Background(), testRequest(), res)
	require.NoError(t, err)
	assert.True(t, out.Success)

	// 5h30m to the reset plus the one-minute cushion.
	assert.Equal(t, 5*time.Hour+31*time.Minute, slept)
	require.Len(t, sv.reqs, 1)
	assert.Equal(t, "sess-42", sv.reqs[0].ResumeToken)
}

// A resumed session that hits the limit again goes around the loop again.
func TestAutoContinueRepeatsOnSecondLimit(t *testing.T) {
	sv := &scriptedSolver{results: []*types.AttemptResult{
		{LimitReached: true, SessionToken: "sess-2", ResetClock: "16:00"},
		{Success: true},
	}}
	p := New(sv, true, 0)
	p.Logf = func(string, ...interface{}) {}
	p.now = time.Now

	sleeps := 0
	p.sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	res := &types.AttemptResult{LimitReached: true, SessionToken: "sess-1", ResetClock: "15:30"}
	out, err := p.Handle(context.Background(), testRequest(), res)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 2, sleeps)
	require.Len(t, sv.reqs, 2)
	assert.Equal(t, "sess-1", sv.reqs[0].ResumeToken)
	assert.Equal(t, "sess-2", sv.reqs[1].ResumeToken)
}

func TestAutoContinueWithoutResetClockFallsBackToManual(t *testing.T) {
	sv := &scriptedSolver{}
	p := New(sv, true, time.Minute)
	p.Logf = func(string, ...interface{}) {}

	res := &types.AttemptResult{LimitReached: true, SessionToken: "sess-9"}
	out, err := p.Handle(context.Background(), testRequest(), res)
	require.NoError(t, err)
	assert.True(t, out.LimitReached)
	assert.Empty(t, sv.reqs)
}

func TestManualCommand(t *testing.T) {
	cmd := ManualCommand(testRequest(), "claude", "sess-7")
	assert.Equal(t,
		"drover solve https://github.com/octo-org/api/issues/7 --agent claude --resume sess-7 --branch drover/issue-7",
		cmd)
}
