package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ticketmill/drover/internal/queue"
	"github.com/ticketmill/drover/internal/types"
)

func item(n int) types.WorkItem {
	return types.WorkItem{URL: fmt.Sprintf("https://github.com/o/r/issues/%d", n), Number: n}
}

func quiet() func(string, ...interface{}) {
	return func(string, ...interface{}) {}
}

// With K workers and M > K items, at most K items are ever in processing.
func TestConcurrencyBound(t *testing.T) {
	const workers = 3
	const items = 12

	q := queue.New()
	for i := 0; i < items; i++ {
		q.Enqueue(item(i))
	}

	var maxProcessing int64
	exec := ExecutorFunc(func(ctx context.Context, it types.WorkItem, attempt int) error {
		st := q.Stats()
		for {
			prev := atomic.LoadInt64(&maxProcessing)
			if int64(st.Processing) <= prev || atomic.CompareAndSwapInt64(&maxProcessing, prev, int64(st.Processing)) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	p := New(q, exec, Config{Workers: workers, PollInterval: 5 * time.Millisecond, Logf: quiet()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitDrained(t, q, items)
	cancel()
	<-done

	if maxProcessing > workers {
		t.Errorf("observed %d items processing, bound is %d", maxProcessing, workers)
	}
	st := q.Stats()
	if st.Completed != items {
		t.Errorf("completed = %d, want %d", st.Completed, items)
	}
}

func TestFailedAttemptAbortsRemaining(t *testing.T) {
	q := queue.New()
	q.Enqueue(item(1))

	var calls int32
	exec := ExecutorFunc(func(ctx context.Context, it types.WorkItem, attempt int) error {
		atomic.AddInt32(&calls, 1)
		if attempt == 2 {
			return errors.New("agent exploded")
		}
		return nil
	})

	p := New(q, exec, Config{Workers: 1, Attempts: 4, PollInterval: time.Millisecond, Logf: quiet()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitDrained(t, q, 1)
	cancel()
	<-done

	// Attempt 2 failed: no partial credit, attempts 3 and 4 never run.
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("solve called %d times, want 2", got)
	}
	st := q.Stats()
	if st.Failed != 1 || st.Completed != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestAllAttemptsMustSucceed(t *testing.T) {
	q := queue.New()
	q.Enqueue(item(1))

	var calls int32
	exec := ExecutorFunc(func(ctx context.Context, it types.WorkItem, attempt int) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	p := New(q, exec, Config{Workers: 1, Attempts: 3, PollInterval: time.Millisecond, Logf: quiet()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitDrained(t, q, 1)
	cancel()
	<-done

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("solve called %d times, want 3", got)
	}
	if st := q.Stats(); st.Completed != 1 {
		t.Errorf("stats = %+v", st)
	}
}

// A worker that claimed an item before cancellation finishes it.
func TestInFlightItemFinishesAfterCancel(t *testing.T) {
	q := queue.New()
	q.Enqueue(item(1))

	started := make(chan struct{})
	var finished sync.WaitGroup
	finished.Add(1)
	exec := ExecutorFunc(func(ctx context.Context, it types.WorkItem, attempt int) error {
		close(started)
		defer finished.Done()
		time.Sleep(30 * time.Millisecond)
		return nil
	})

	p := New(q, exec, Config{Workers: 1, PollInterval: time.Millisecond, Logf: quiet()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	<-started
	cancel()
	<-done
	finished.Wait()

	if st := q.Stats(); st.Completed != 1 || st.Processing != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func waitDrained(t *testing.T, q *queue.Queue, want int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		st := q.Stats()
		if st.Queued == 0 && st.Processing == 0 && st.Completed+st.Failed >= want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("queue never drained: %+v", q.Stats())
		case <-time.After(2 * time.Millisecond):
		}
	}
}
