// Package pool runs N concurrent workers that drain the job queue. Workers
// never talk to each other; the queue is the only coordination point.
package pool

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ticketmill/drover/internal/queue"
	"github.com/ticketmill/drover/internal/types"
)

// Executor performs one solve attempt for an item. A non-nil error marks
// the whole item failed and aborts its remaining attempts.
type Executor interface {
	Solve(ctx context.Context, item types.WorkItem, attempt int) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, item types.WorkItem, attempt int) error

func (f ExecutorFunc) Solve(ctx context.Context, item types.WorkItem, attempt int) error {
	return f(ctx, item, attempt)
}

// Config tunes one pool.
type Config struct {
	Workers      int
	Attempts     int           // solve attempts per item; all must succeed
	PollInterval time.Duration // idle wait when the queue is empty
	AttemptDelay time.Duration // wait between attempts on the same item
	Logf         func(format string, args ...interface{})
}

// Pool dispatches queue items to an Executor with bounded concurrency.
type Pool struct {
	queue *queue.Queue
	exec  Executor
	cfg   Config
}

// New builds a pool. Zero config fields get conservative defaults.
func New(q *queue.Queue, exec Executor, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Logf == nil {
		cfg.Logf = func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
	return &Pool{queue: q, exec: exec, cfg: cfg}
}

// Run blocks until ctx is cancelled and every worker has returned. A worker
// that has already claimed an item finishes that item before exiting, so
// cancellation is the caller's grace-period lever.
func (p *Pool) Run(ctx context.Context) error {
	g := new(errgroup.Group)
	for i := 0; i < p.cfg.Workers; i++ {
		id := i
		g.Go(func() error {
			p.worker(ctx, id)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		item, ok := p.queue.Dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.PollInterval):
			}
			continue
		}
		p.process(ctx, id, item)
	}
}

// process runs every configured attempt for one claimed item. Failures stay
// inside this boundary: they mark the item failed, never crash the worker.
func (p *Pool) process(ctx context.Context, id int, item types.WorkItem) {
	for attempt := 1; attempt <= p.cfg.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
			case <-time.After(p.cfg.AttemptDelay):
			}
		}
		if err := p.exec.Solve(ctx, item, attempt); err != nil {
			p.cfg.Logf("worker %d: %s attempt %d/%d failed: %v",
				id, item.ID(), attempt, p.cfg.Attempts, err)
			if markErr := p.queue.MarkFailed(item.ID()); markErr != nil {
				p.cfg.Logf("worker %d: %v", id, markErr)
			}
			return
		}
	}
	if err := p.queue.MarkCompleted(item.ID()); err != nil {
		p.cfg.Logf("worker %d: %v", id, err)
	}
}
