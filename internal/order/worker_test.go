package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/antonminaichev/wholesale/internal/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCanceller struct {
	mu              sync.Mutex
	cutoffs         []time.Time
	cancelExpiredFn func(ctx context.Context, cutoff time.Time) (int, error)
}

func (m *mockCanceller) CancelExpired(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	m.cutoffs = append(m.cutoffs, cutoff)
	m.mu.Unlock()
	if m.cancelExpiredFn != nil {
		return m.cancelExpiredFn(ctx, cutoff)
	}
	return 0, nil
}

func (m *mockCanceller) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cutoffs)
}

func TestSweepOnceUsesGracePeriod(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	m := &mockCanceller{cancelExpiredFn: func(ctx context.Context, cutoff time.Time) (int, error) {
		return 2, nil
	}}

	n, err := SweepOnce(context.Background(), m, lock.NewLocalLocker(), 24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, m.cutoffs, 1)
	assert.Equal(t, now.Add(-24*time.Hour), m.cutoffs[0])
}

func TestSweepOnceSkipsWhenLocked(t *testing.T) {
	ctx := context.Background()
	locker := lock.NewLocalLocker()
	release, err := locker.Acquire(ctx, sweepLockName, time.Minute)
	require.NoError(t, err)

	m := &mockCanceller{}
	_, err = SweepOnce(ctx, m, locker, time.Hour, time.Now())
	assert.True(t, errors.Is(err, lock.ErrNotAcquired))
	assert.Equal(t, 0, m.calls())

	require.NoError(t, release(ctx))
	_, err = SweepOnce(ctx, m, locker, time.Hour, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 1, m.calls())
}

func TestSweepLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &mockCanceller{cancelExpiredFn: func(ctx context.Context, cutoff time.Time) (int, error) {
		return 0, errors.New("db down")
	}}

	done := make(chan struct{})
	go func() {
		SweepLoop(ctx, m, lock.NewLocalLocker(), time.Hour, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return m.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not stop")
	}
}
