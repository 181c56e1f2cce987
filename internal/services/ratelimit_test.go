package services

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRateLimiterDeniesOverBudget(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := limiter.Allow(ctx, "approve:user:1", 5, time.Minute)
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !ok {
			t.Fatalf("request %d within budget should be allowed", i+1)
		}
	}

	ok, err := limiter.Allow(ctx, "approve:user:1", 5, time.Minute)
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if ok {
		t.Fatal("6th request within the window must be denied")
	}
}

func TestMemoryRateLimiterWindowRollsOver(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if ok, _ := limiter.Allow(ctx, "k", 5, time.Minute); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if ok, _ := limiter.Allow(ctx, "k", 5, time.Minute); ok {
		t.Fatal("over-budget request must be denied")
	}

	// Once the window rolls past the earliest request, capacity returns.
	now = base.Add(time.Minute + time.Second)
	if ok, _ := limiter.Allow(ctx, "k", 5, time.Minute); !ok {
		t.Fatal("request after window rollover should be allowed")
	}
}

func TestMemoryRateLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "approve:user:1", 1, time.Minute); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "approve:user:1", 1, time.Minute); ok {
		t.Fatal("second request on the same key must be denied")
	}
	if ok, _ := limiter.Allow(ctx, "approve:user:2", 1, time.Minute); !ok {
		t.Fatal("other users must not be affected")
	}
	if ok, _ := limiter.Allow(ctx, "cancel:user:1", 1, time.Minute); !ok {
		t.Fatal("other operations must not be affected")
	}
}
