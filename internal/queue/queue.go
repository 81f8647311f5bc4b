// Package queue implements the deduplicating job queue that coordinates the
// monitor loop and the worker pool. An item identifier lives in at most one
// of four disjoint sets: queued, processing, completed, failed. All state is
// in-memory; nothing survives a restart.
package queue

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ticketmill/drover/internal/types"
)

// ErrNotProcessing is returned when markCompleted/markFailed is called for an
// id that no worker currently holds. Production callers log it and move on;
// tests treat it as a bug.
var ErrNotProcessing = errors.New("item is not in processing")

// Stats is a point-in-time snapshot of the four set sizes.
type Stats struct {
	Queued     int
	Processing int
	Completed  int
	Failed     int
}

func (s Stats) String() string {
	return fmt.Sprintf("queued=%d processing=%d completed=%d failed=%d",
		s.Queued, s.Processing, s.Completed, s.Failed)
}

// Queue is safe for concurrent use by any number of workers and one monitor.
type Queue struct {
	mu         sync.Mutex
	order      []string // dispatch order for queued ids
	queued     map[string]types.WorkItem
	processing map[string]types.WorkItem
	completed  map[string]struct{}
	failed     map[string]struct{}
	closed     bool
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{
		queued:     make(map[string]types.WorkItem),
		processing: make(map[string]types.WorkItem),
		completed:  make(map[string]struct{}),
		failed:     make(map[string]struct{}),
	}
}

// Enqueue adds the item unless it is already queued, processing, or
// completed. A previously failed item may be re-enqueued by a later
// discovery cycle; it leaves the failed set when that happens. Returns true
// if the item was added.
func (q *Queue) Enqueue(item types.WorkItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	id := item.ID()
	if _, ok := q.queued[id]; ok {
		return false
	}
	if _, ok := q.processing[id]; ok {
		return false
	}
	if _, ok := q.completed[id]; ok {
		return false
	}
	delete(q.failed, id)
	q.queued[id] = item
	q.order = append(q.order, id)
	return true
}

// Dequeue moves the oldest queued item into processing and returns it.
// The move is atomic: no two callers can claim the same head element.
// ok is false when the queue is empty or closed to new claims.
func (q *Queue) Dequeue() (item types.WorkItem, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.order) == 0 {
		return types.WorkItem{}, false
	}
	id := q.order[0]
	q.order = q.order[1:]
	item = q.queued[id]
	delete(q.queued, id)
	q.processing[id] = item
	return item, true
}

// MarkCompleted moves an in-flight item to the completed set.
func (q *Queue) MarkCompleted(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.processing[id]; !ok {
		return fmt.Errorf("mark completed %s: %w", id, ErrNotProcessing)
	}
	delete(q.processing, id)
	q.completed[id] = struct{}{}
	return nil
}

// MarkFailed moves an in-flight item to the failed set.
func (q *Queue) MarkFailed(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.processing[id]; !ok {
		return fmt.Errorf("mark failed %s: %w", id, ErrNotProcessing)
	}
	delete(q.processing, id)
	q.failed[id] = struct{}{}
	return nil
}

// Close stops the queue from accepting enqueues and dequeue claims.
// In-flight items may still be marked completed or failed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Stats returns a snapshot of set sizes.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Queued:     len(q.order),
		Processing: len(q.processing),
		Completed:  len(q.completed),
		Failed:     len(q.failed),
	}
}

// Tracked reports whether the id is currently in queued, processing, or
// completed (i.e. whether Enqueue would reject it).
func (q *Queue) Tracked(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.queued[id]; ok {
		return true
	}
	if _, ok := q.processing[id]; ok {
		return true
	}
	_, ok := q.completed[id]
	return ok
}
