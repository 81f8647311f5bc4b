package queue

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ticketmill/drover/internal/types"
)

func item(n int) types.WorkItem {
	return types.WorkItem{
		URL:    fmt.Sprintf("https://github.com/octocat/hello/issues/%d", n),
		Number: n,
		Title:  fmt.Sprintf("issue %d", n),
	}
}

func TestEnqueueDeduplicates(t *testing.T) {
	q := New()

	if !q.Enqueue(item(1)) {
		t.Fatal("first enqueue rejected")
	}
	if q.Enqueue(item(1)) {
		t.Error("duplicate enqueue accepted while queued")
	}

	got, ok := q.Dequeue()
	if !ok || got.Number != 1 {
		t.Fatalf("dequeue = %v, %v", got, ok)
	}
	if q.Enqueue(item(1)) {
		t.Error("duplicate enqueue accepted while processing")
	}

	if err := q.MarkCompleted(got.ID()); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if q.Enqueue(item(1)) {
		t.Error("duplicate enqueue accepted after completion")
	}
}

func TestFailedItemsMayBeRequeued(t *testing.T) {
	q := New()
	q.Enqueue(item(1))
	it, _ := q.Dequeue()
	if err := q.MarkFailed(it.ID()); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if q.Stats().Failed != 1 {
		t.Fatalf("stats = %+v", q.Stats())
	}

	// A later discovery cycle gets another shot at a failed item.
	if !q.Enqueue(item(1)) {
		t.Fatal("failed item could not be re-enqueued")
	}
	st := q.Stats()
	if st.Failed != 0 || st.Queued != 1 {
		t.Errorf("stats after requeue = %+v", st)
	}
}

func TestFIFOOrder(t *testing.T) {
	q := New()
	for i := 1; i <= 5; i++ {
		q.Enqueue(item(i))
	}
	for i := 1; i <= 5; i++ {
		got, ok := q.Dequeue()
		if !ok || got.Number != i {
			t.Fatalf("dequeue %d = %v, %v", i, got, ok)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("dequeue on empty queue succeeded")
	}
}

func TestMarkWithoutClaimIsAnError(t *testing.T) {
	q := New()
	q.Enqueue(item(1))

	if err := q.MarkCompleted(item(1).ID()); !errors.Is(err, ErrNotProcessing) {
		t.Errorf("MarkCompleted on queued item: %v", err)
	}
	if err := q.MarkFailed("https://github.com/octocat/hello/issues/99"); !errors.Is(err, ErrNotProcessing) {
		t.Errorf("MarkFailed on unknown item: %v", err)
	}
}

// Discovery returns [A, B, C]; B is already processing from a prior cycle.
// Only A and C may be enqueued.
func TestReDiscoveryWithInFlightItem(t *testing.T) {
	q := New()
	q.Enqueue(item(2)) // B
	if _, ok := q.Dequeue(); !ok {
		t.Fatal("claim failed")
	}

	added := 0
	for _, n := range []int{1, 2, 3} {
		if q.Enqueue(item(n)) {
			added++
		}
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	st := q.Stats()
	if st.Queued != 2 || st.Processing != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestCloseStopsClaims(t *testing.T) {
	q := New()
	q.Enqueue(item(1))
	it, _ := q.Dequeue()
	q.Enqueue(item(2))
	q.Close()

	if q.Enqueue(item(3)) {
		t.Error("enqueue accepted after close")
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("dequeue claimed after close")
	}
	// In-flight work can still settle.
	if err := q.MarkCompleted(it.ID()); err != nil {
		t.Errorf("MarkCompleted after close: %v", err)
	}
}

// Hammer the queue from many goroutines and verify no id is ever claimed
// twice and the disjoint-set invariant holds at the end.
func TestConcurrentClaims(t *testing.T) {
	q := New()
	const n = 200
	for i := 0; i < n; i++ {
		q.Enqueue(item(i))
	}

	var mu sync.Mutex
	seen := make(map[string]int)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				it, ok := q.Dequeue()
				if !ok {
					return
				}
				mu.Lock()
				seen[it.ID()]++
				mu.Unlock()
				if it.Number%2 == 0 {
					_ = q.MarkCompleted(it.ID())
				} else {
					_ = q.MarkFailed(it.ID())
				}
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("claimed %d distinct items, want %d", len(seen), n)
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("item %s claimed %d times", id, count)
		}
	}
	st := q.Stats()
	if st.Queued != 0 || st.Processing != 0 || st.Completed+st.Failed != n {
		t.Errorf("final stats = %+v", st)
	}
}
