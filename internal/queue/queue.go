// Package queue implements the in-memory offline write queue: a bounded
// FIFO of pending save operations, drained once per online-transition edge.
package queue

import (
	"context"
	"sync"

	"github.com/budgetvault/BudgetVault/internal/models"
)

const (
	// DefaultCapacity is the hard cap on queued operations; enqueueing past
	// it evicts the oldest entry.
	DefaultCapacity = 100
	// MaxRetries is how many times a failed operation is re-enqueued before
	// being dropped and reported as a permanent failure.
	MaxRetries = 2
)

// KindSave is the only operation kind the queue currently carries.
const KindSave = "save"

// Operation is one pending write. The payload is intentionally kept in
// plaintext: encryption happens at the moment of actual transmission so a
// key rotation between enqueue and drain is honored.
type Operation struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Payload    models.BudgetData `json:"payload"`
	Author     models.Author     `json:"author"`
	EnqueuedAt string            `json:"enqueuedAt"`
	Retries    int               `json:"retries"`
}

// Executor performs the actual remote write for a queued operation.
type Executor func(ctx context.Context, op Operation) error

// DrainResult reports the outcome of one drained operation. Permanent is
// set when the retry ceiling was exhausted and the operation was dropped.
type DrainResult struct {
	Op        Operation
	Err       error
	Permanent bool
}

// OfflineQueue is a mutex-guarded bounded FIFO. All mutation goes through
// the owning sync session.
type OfflineQueue struct {
	mu       sync.Mutex
	ops      []Operation
	capacity int
}

// New returns a queue with DefaultCapacity.
func New() *OfflineQueue {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity returns a queue bounded at n operations.
func NewWithCapacity(n int) *OfflineQueue {
	if n <= 0 {
		n = DefaultCapacity
	}
	return &OfflineQueue{capacity: n}
}

// Enqueue appends op, evicting the oldest entry when the cap is exceeded.
// It reports whether an eviction happened so the caller can log the
// overflow; overflow is never surfaced as a hard failure.
func (q *OfflineQueue) Enqueue(op Operation) (evicted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
	if len(q.ops) > q.capacity {
		q.ops = q.ops[len(q.ops)-q.capacity:]
		return true
	}
	return false
}

// Drain replays the queued operations in FIFO order, strictly in sequence.
// A failed operation is re-enqueued with its retry count bumped until
// MaxRetries is exceeded, at which point it is dropped and reported as
// permanent. Drain must be triggered once per online-transition edge, not
// per network blip.
func (q *OfflineQueue) Drain(ctx context.Context, exec Executor) []DrainResult {
	q.mu.Lock()
	pending := q.ops
	q.ops = nil
	q.mu.Unlock()

	results := make([]DrainResult, 0, len(pending))
	for _, op := range pending {
		if err := ctx.Err(); err != nil {
			// Put the remainder back untouched for the next edge.
			q.requeue(op)
			continue
		}
		err := exec(ctx, op)
		if err == nil {
			results = append(results, DrainResult{Op: op})
			continue
		}
		if op.Retries < MaxRetries {
			op.Retries++
			q.requeue(op)
			results = append(results, DrainResult{Op: op, Err: err})
			continue
		}
		results = append(results, DrainResult{Op: op, Err: err, Permanent: true})
	}
	return results
}

// Size returns the number of queued operations.
func (q *OfflineQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Clear drops every queued operation.
func (q *OfflineQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = nil
}

// Snapshot returns a copy of the pending operations, oldest first.
func (q *OfflineQueue) Snapshot() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Operation(nil), q.ops...)
}

func (q *OfflineQueue) requeue(op Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
	if len(q.ops) > q.capacity {
		q.ops = q.ops[len(q.ops)-q.capacity:]
	}
}
