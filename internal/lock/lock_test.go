package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client), mr
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	l, mr := setupRedis(t)

	release, err := l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("wholesale:lock:sweep"))

	_, err = l.Acquire(ctx, "sweep", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	_, err = l.Acquire(ctx, "tracking", time.Minute)
	assert.NoError(t, err)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("wholesale:lock:sweep"))

	_, err = l.Acquire(ctx, "sweep", time.Minute)
	assert.NoError(t, err)
}

func TestRedisLockerExpiredLockNotReleasedByOldHolder(t *testing.T) {
	ctx := context.Background()
	l, mr := setupRedis(t)

	release, err := l.Acquire(ctx, "sweep", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	_, err = l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	assert.True(t, mr.Exists("wholesale:lock:sweep"))
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.now = func() time.Time { return now }

	release, err := l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "sweep", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	now = now.Add(2 * time.Minute)
	_, err = l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)

	// stale release must not drop the new holder
	require.NoError(t, release(ctx))
	_, err = l.Acquire(ctx, "sweep", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestDoSkipsWhenHeld(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	ran := 0
	err := Do(ctx, l, "sweep", time.Minute, func(ctx context.Context) error {
		ran++
		inner := Do(ctx, l, "sweep", time.Minute, func(context.Context) error {
			ran++
			return nil
		})
		assert.ErrorIs(t, inner, ErrNotAcquired)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ran)

	require.NoError(t, Do(ctx, l, "sweep", time.Minute, func(context.Context) error { return nil }))
}
