// Package monitor implements the top-level scheduling loop: discover work,
// enqueue it, report stats, and either drain once or tick forever.
package monitor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ticketmill/drover/internal/gh"
	"github.com/ticketmill/drover/internal/metrics"
	"github.com/ticketmill/drover/internal/pool"
	"github.com/ticketmill/drover/internal/queue"
	"github.com/ticketmill/drover/internal/types"
)

// Tracker is the slice of the gh client the monitor needs.
type Tracker interface {
	DiscoverWithFallback(ctx context.Context, f types.Filter) (items []types.WorkItem, usedFallback bool, err error)
	BatchCheckLinks(ctx context.Context, repo types.RepoRef, numbers []int) (map[int]gh.LinkStatus, error)
}

// Config tunes one monitor loop.
type Config struct {
	Filter         types.Filter
	Interval       time.Duration
	Once           bool
	MaxItems       int  // cap on enqueued items per tick; 0 = unlimited
	SkipInProgress bool // drop items that already have an open PR attached
	Grace          time.Duration
	Logf           func(format string, args ...interface{})
}

// Monitor owns the queue and worker pool for one run.
type Monitor struct {
	cfg     Config
	tracker Tracker
	q       *queue.Queue
	pool    *pool.Pool
	met     *metrics.Metrics
}

// New wires a monitor. met may be nil when metrics are disabled.
func New(tracker Tracker, q *queue.Queue, p *pool.Pool, met *metrics.Metrics, cfg Config) *Monitor {
	if cfg.Logf == nil {
		cfg.Logf = func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 2 * time.Minute
	}
	return &Monitor{cfg: cfg, tracker: tracker, q: q, pool: p, met: met}
}

// Run blocks until the context is cancelled (continuous mode) or the queue
// drains (single-pass mode). On cancellation it stops new claims and gives
// in-flight items the configured grace period before returning.
func (m *Monitor) Run(ctx context.Context) error {
	// The pool gets its own context so workers survive the monitor's
	// cancellation long enough to finish their current item.
	poolCtx, stopPool := context.WithCancel(context.Background())
	poolDone := make(chan error, 1)
	go func() { poolDone <- m.pool.Run(poolCtx) }()

	for {
		m.tick(ctx)

		if m.cfg.Once {
			m.drain(ctx)
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(m.cfg.Interval):
		}
		if ctx.Err() != nil {
			m.cfg.Logf("shutdown requested")
			break
		}
	}

	m.shutdown(stopPool, poolDone)
	return nil
}

// tick runs one discovery cycle. A failed cycle enqueues nothing and logs;
// it never stops the loop.
func (m *Monitor) tick(ctx context.Context) {
	items, usedFallback, err := m.tracker.DiscoverWithFallback(ctx, m.cfg.Filter)
	if usedFallback && m.met != nil {
		m.met.Fallbacks.Inc()
	}
	if err != nil {
		// Distinct from "0 issues found": the cycle itself failed.
		m.cfg.Logf("discovery failed: %v", err)
		if m.met != nil {
			m.met.DiscoveryCycles.WithLabelValues("failed").Inc()
		}
		m.report()
		return
	}
	if m.met != nil {
		m.met.DiscoveryCycles.WithLabelValues("ok").Inc()
	}

	if m.cfg.SkipInProgress && len(items) > 0 {
		items = m.dropInProgress(ctx, items)
	}
	if m.cfg.MaxItems > 0 && len(items) > m.cfg.MaxItems {
		m.cfg.Logf("capping %d discovered items to %d", len(items), m.cfg.MaxItems)
		items = items[:m.cfg.MaxItems]
	}

	added, known := 0, 0
	for _, it := range items {
		if m.q.Enqueue(it) {
			added++
		} else {
			known++
		}
	}
	m.cfg.Logf("discovered %d items: %d enqueued, %d already tracked", len(items), added, known)
	m.report()
}

// dropInProgress batches a linked-PR check per repository and drops items
// that already have an open, non-draft PR cross-referencing them. Check
// failures keep the items: enqueueing twice is cheaper than losing work.
func (m *Monitor) dropInProgress(ctx context.Context, items []types.WorkItem) []types.WorkItem {
	byRepo := make(map[types.RepoRef][]int)
	for _, it := range items {
		byRepo[it.Repo] = append(byRepo[it.Repo], it.Number)
	}

	inProgress := make(map[string]bool)
	for repo, numbers := range byRepo {
		statuses, err := m.tracker.BatchCheckLinks(ctx, repo, numbers)
		if err != nil {
			m.cfg.Logf("link check for %s failed: %v", repo, err)
			continue
		}
		for n, st := range statuses {
			if st.OpenLinkCount > 0 {
				inProgress[types.IssueURL(repo, n)] = true
			}
		}
	}

	kept := items[:0]
	skipped := 0
	for _, it := range items {
		if inProgress[it.ID()] {
			skipped++
			continue
		}
		kept = append(kept, it)
	}
	if skipped > 0 {
		m.cfg.Logf("skipping %d items that already have an open PR", skipped)
	}
	return kept
}

// report prints the per-tick stats line and refreshes gauges.
func (m *Monitor) report() {
	st := m.q.Stats()
	m.cfg.Logf("%s", st)
	if m.met != nil {
		m.met.ObserveQueue(st)
	}
}

// drain waits, in single-pass mode, until nothing is queued or in flight.
func (m *Monitor) drain(ctx context.Context) {
	for {
		st := m.q.Stats()
		if st.Queued == 0 && st.Processing == 0 {
			m.report()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// shutdown stops new claims, waits out the grace period for in-flight
// items, then cancels the workers. In-flight items still running after the
// grace period are abandoned to their adapters, not force-killed here.
func (m *Monitor) shutdown(stopPool context.CancelFunc, poolDone <-chan error) {
	m.q.Close()

	deadline := time.After(m.cfg.Grace)
	for {
		if m.q.Stats().Processing == 0 {
			break
		}
		select {
		case <-deadline:
			m.cfg.Logf("grace period expired with %d items in flight", m.q.Stats().Processing)
		case <-time.After(250 * time.Millisecond):
			continue
		}
		break
	}

	stopPool()
	<-poolDone
	m.report()
}
