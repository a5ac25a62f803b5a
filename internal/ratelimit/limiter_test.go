package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestLimiter creates a Limiter backed by a local Redis instance and
// cleans up test keys. Tests that call this helper require a running
// Redis on localhost:6379.
func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	cleanup := func() {
		for _, prefix := range []string{RuleSend.Key + "test_*", RuleJoin.Key + "test_*"} {
			iter := client.Scan(ctx, 0, prefix, 100).Iterator()
			for iter.Next(ctx) {
				client.Del(ctx, iter.Val())
			}
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		client.Close()
	})

	return NewLimiter(client)
}

func TestAllow_UnderLimit(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	rule := Rule{Key: RuleSend.Key, Limit: 3, Window: 10 * time.Second}
	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "test_under", rule)
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
}

func TestAllow_OverLimit(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	rule := Rule{Key: RuleSend.Key, Limit: 2, Window: 10 * time.Second}
	limiter.Allow(ctx, "test_over", rule)
	limiter.Allow(ctx, "test_over", rule)

	allowed, err := limiter.Allow(ctx, "test_over", rule)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if allowed {
		t.Error("request over the limit should be denied")
	}
}

func TestAllow_IdentifiersIndependent(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	rule := Rule{Key: RuleSend.Key, Limit: 1, Window: 10 * time.Second}
	limiter.Allow(ctx, "test_a", rule)

	allowed, err := limiter.Allow(ctx, "test_b", rule)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if !allowed {
		t.Error("a different identifier must have its own counter")
	}
}

func TestAllow_RulesIndependent(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	sendRule := Rule{Key: RuleSend.Key, Limit: 1, Window: 10 * time.Second}
	joinRule := Rule{Key: RuleJoin.Key, Limit: 1, Window: 10 * time.Second}

	limiter.Allow(ctx, "test_rules", sendRule)

	allowed, err := limiter.Allow(ctx, "test_rules", joinRule)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if !allowed {
		t.Error("rules with different key prefixes must not share counters")
	}
}

func TestRemaining(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	rule := Rule{Key: RuleSend.Key, Limit: 5, Window: 10 * time.Second}

	remaining, err := limiter.Remaining(ctx, "test_rem", rule)
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if remaining != 5 {
		t.Errorf("expected full limit before any request, got %d", remaining)
	}

	limiter.Allow(ctx, "test_rem", rule)
	limiter.Allow(ctx, "test_rem", rule)

	remaining, err = limiter.Remaining(ctx, "test_rem", rule)
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if remaining != 3 {
		t.Errorf("expected 3 remaining, got %d", remaining)
	}
}
