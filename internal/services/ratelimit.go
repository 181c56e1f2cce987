package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter bounds request volume per (operation, client) key over a
// sliding window. Allow reports whether this request fits the budget.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RedisRateLimiter keeps one sorted set per key, scored by request time.
// Shared across server instances, which in-process counters are not.
type RedisRateLimiter struct {
	client *redis.Client
}

func NewRedisRateLimiter(cache *RedisCache) *RedisRateLimiter {
	return &RedisRateLimiter{client: cache.Client()}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := "ratelimit:" + key
	now := time.Now()
	cutoff := now.Add(-window).UnixMilli()
	// The member must be unique or concurrent requests in the same
	// millisecond would collapse into one entry.
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())

	// Prune, record and count in one MULTI/EXEC so concurrent requests at
	// the window boundary serialize instead of all reading the same count.
	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", cutoff))
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: member,
	})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	if countCmd.Val() > int64(limit) {
		// Over budget: withdraw this request's entry so a denied caller
		// does not consume the window for later ones.
		l.client.ZRem(ctx, redisKey, member)
		return false, nil
	}

	return true, nil
}

// MemoryRateLimiter is the process-local fallback used when Redis is not
// configured, and in tests. Not suitable for multi-instance deployments.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	now     func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		entries: make(map[string][]time.Time),
		now:     time.Now,
	}
}

func (l *MemoryRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	kept := l.entries[key][:0]
	for _, t := range l.entries[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		l.entries[key] = kept
		return false, nil
	}

	l.entries[key] = append(kept, now)
	return true, nil
}

// AllowOrLog wraps a limiter so backend failures degrade to allowing the
// request: losing rate limiting briefly is preferable to refusing payments.
func AllowOrLog(ctx context.Context, limiter RateLimiter, key string, limit int, window time.Duration) bool {
	ok, err := limiter.Allow(ctx, key, limit, window)
	if err != nil {
		log.Printf("rate limiter unavailable for %s: %v", key, err)
		return true
	}
	return ok
}
