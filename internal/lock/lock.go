// Package lock provides named mutual exclusion for background jobs.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("lock not acquired")

type Locker interface {
	// Acquire returns a release func, or ErrNotAcquired when the name is held.
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "wholesale:lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	key := l.prefix + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("redis release failed: %w", err)
		}
		return nil
	}, nil
}

type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if exp, ok := l.held[name]; ok && l.now().Before(exp) {
		return nil, ErrNotAcquired
	}
	exp := l.now().Add(ttl)
	l.held[name] = exp
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[name].Equal(exp) {
			delete(l.held, name)
		}
		return nil
	}, nil
}

// Do runs fn while holding name. It returns ErrNotAcquired without running fn when the name is held.
func Do(ctx context.Context, l Locker, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	release, err := l.Acquire(ctx, name, ttl)
	if err != nil {
		return err
	}
	defer release(context.WithoutCancel(ctx))
	return fn(ctx)
}
