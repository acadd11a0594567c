package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockDeleter struct {
	mu      sync.Mutex
	cutoffs []int64
	removed int64
	err     error
}

func (m *mockDeleter) DeleteClearedBefore(_ context.Context, cutoff int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	return m.removed, m.err
}

func (m *mockDeleter) runs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cutoffs)
}

func TestPruneOnce_UsesRetentionCutoff(t *testing.T) {
	m := &mockDeleter{removed: 2}
	before := time.Now().Add(-time.Hour).UnixMilli()

	pruneOnce(context.Background(), m, time.Hour, zap.NewNop())

	require.Len(t, m.cutoffs, 1)
	after := time.Now().Add(-time.Hour).UnixMilli()
	assert.GreaterOrEqual(t, m.cutoffs[0], before)
	assert.LessOrEqual(t, m.cutoffs[0], after)
}

func TestPruneOnce_ErrorIsSwallowed(t *testing.T) {
	m := &mockDeleter{err: errors.New("db gone")}
	// Must not panic; the next tick tries again.
	pruneOnce(context.Background(), m, time.Hour, zap.NewNop())
	require.Len(t, m.cutoffs, 1)
}

func TestStartClearedDocPruner_StopsOnCancel(t *testing.T) {
	m := &mockDeleter{}
	ctx, cancel := context.WithCancel(context.Background())

	StartClearedDocPruner(ctx, m, 5*time.Millisecond, time.Hour, zap.NewNop())

	require.Eventually(t, func() bool { return m.runs() > 0 }, time.Second, time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	runs := m.runs()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, runs, m.runs(), "no pruning after cancellation")
}
