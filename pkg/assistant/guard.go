package assistant

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/marigold/pkg/redis"
)

// Guard admits one request per key at a time. Acquire fails with ErrInFlight while the key
// is held; the returned release frees it.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalGuard guards keys within this process.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: map[string]struct{}{}}
}

func (g *LocalGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[key]; ok {
		return nil, ErrInFlight
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

// RedisGuard guards keys across replicas with a Redis lock. The lock expires after ttl
// if a replica dies holding it. When Redis itself fails the request is let through and
// the local guard still applies.
type RedisGuard struct {
	locker *redis.Locker
	ttl    time.Duration
	logger ectologger.Logger
}

func NewRedisGuard(locker *redis.Locker, ttl time.Duration, logger ectologger.Logger) *RedisGuard {
	return &RedisGuard{locker: locker, ttl: ttl, logger: logger}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := g.locker.Acquire(ctx, key, g.ttl)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return nil, ErrInFlight
	}
	if err != nil {
		g.logger.WithContext(ctx).WithError(err).Warnf("Redis guard unavailable for %s, continuing with the local guard", key)
		return func() {}, nil
	}

	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			g.logger.WithContext(ctx).WithError(err).Warnf("Failed to release in-flight lock %s", key)
		}
	}, nil
}

// Guards acquires every guard in order and releases them in reverse.
type Guards []Guard

func (gs Guards) Acquire(ctx context.Context, key string) (func(), error) {
	releases := make([]func(), 0, len(gs))
	releaseAll := func() {
		for _, release := range slices.Backward(releases) {
			release()
		}
	}

	for _, g := range gs {
		release, err := g.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}

	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}
