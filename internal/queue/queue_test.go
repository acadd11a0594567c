package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/budgetvault/BudgetVault/internal/models"
)

func op(id string) Operation {
	return Operation{ID: id, Kind: KindSave, Payload: models.BudgetData{LastModified: 1}}
}

func TestEnqueue_BoundedEvictsOldest(t *testing.T) {
	q := New()
	for i := 0; i < 150; i++ {
		q.Enqueue(op(fmt.Sprintf("op%d", i)))
	}

	require.Equal(t, DefaultCapacity, q.Size())
	snap := q.Snapshot()
	assert.Equal(t, "op50", snap[0].ID, "the 100 most recently enqueued remain")
	assert.Equal(t, "op149", snap[len(snap)-1].ID)
}

func TestEnqueue_ReportsEviction(t *testing.T) {
	q := NewWithCapacity(2)
	assert.False(t, q.Enqueue(op("a")))
	assert.False(t, q.Enqueue(op("b")))
	assert.True(t, q.Enqueue(op("c")))
}

func TestDrain_FIFOInSequence(t *testing.T) {
	q := New()
	for i := 0; i < 5; i++ {
		q.Enqueue(op(fmt.Sprintf("op%d", i)))
	}

	var order []string
	results := q.Drain(context.Background(), func(_ context.Context, o Operation) error {
		order = append(order, o.ID)
		return nil
	})

	assert.Equal(t, []string{"op0", "op1", "op2", "op3", "op4"}, order)
	require.Len(t, results, 5)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
	assert.Zero(t, q.Size())
}

func TestDrain_RetriesThenPermanentFailure(t *testing.T) {
	q := New()
	q.Enqueue(op("sticky"))
	fail := errors.New("write failed")
	exec := func(context.Context, Operation) error { return fail }

	// First drain: failure, re-enqueued with retries=1.
	res := q.Drain(context.Background(), exec)
	require.Len(t, res, 1)
	assert.False(t, res[0].Permanent)
	require.Equal(t, 1, q.Size())
	assert.Equal(t, 1, q.Snapshot()[0].Retries)

	// Second drain: retries=2, still re-enqueued.
	res = q.Drain(context.Background(), exec)
	require.Len(t, res, 1)
	assert.False(t, res[0].Permanent)
	require.Equal(t, 1, q.Size())

	// Third drain: ceiling exceeded, dropped and reported.
	res = q.Drain(context.Background(), exec)
	require.Len(t, res, 1)
	assert.True(t, res[0].Permanent)
	assert.ErrorIs(t, res[0].Err, fail)
	assert.Zero(t, q.Size())
}

func TestDrain_SucceedsAfterRetry(t *testing.T) {
	q := New()
	q.Enqueue(op("flaky"))
	calls := 0
	exec := func(context.Context, Operation) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}

	q.Drain(context.Background(), exec)
	res := q.Drain(context.Background(), exec)
	require.Len(t, res, 1)
	assert.NoError(t, res[0].Err)
	assert.Zero(t, q.Size())
}

func TestDrain_CancelledContextKeepsRemainder(t *testing.T) {
	q := New()
	q.Enqueue(op("a"))
	q.Enqueue(op("b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Drain(ctx, func(context.Context, Operation) error { return nil })

	assert.Equal(t, 2, q.Size(), "nothing executes after cancellation")
}

func TestClear(t *testing.T) {
	q := New()
	q.Enqueue(op("a"))
	q.Clear()
	assert.Zero(t, q.Size())
}
