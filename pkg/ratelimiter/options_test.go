package ratelimiter

import (
	"context"
	"testing"
	"time"
)

func TestRedisRateLimiter_Options(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client := newTestClient(t, ctx)

	t.Run("WithPrefix", func(t *testing.T) {
		prefix := "custom_app:"
		name := testLimiterName("opt_prefix")

		rl, err := NewRedisRateLimiter(client, name, WithPrefix(prefix))
		if err != nil {
			t.Fatalf("Failed to create limiter: %v", err)
		}
		if err := rl.SetRate(ctx, Config{Mode: ModeOverall, Rate: 1, Interval: time.Second}); err != nil {
			t.Fatalf("SetRate failed: %v", err)
		}

		// Verify the ledger lives under the custom prefix.
		exists, err := client.Exists(ctx, prefix+name).Result()
		if err != nil {
			t.Fatalf("Redis Exists failed: %v", err)
		}
		if exists == 0 {
			t.Errorf("Expected key %s to exist, but it does not", prefix+name)
		}
	})

	t.Run("WithTimeout", func(t *testing.T) {
		// Hard to test timeout without mocking network latency; creating a
		// limiter with a tight but valid timeout must still succeed.
		_, err := NewRedisRateLimiter(client, testLimiterName("opt_timeout"), WithTimeout(500*time.Millisecond))
		if err != nil {
			t.Errorf("WithTimeout should not cause an error on a valid client: %v", err)
		}
	})

	t.Run("WithClientID", func(t *testing.T) {
		name := testLimiterName("opt_client")
		rl, err := NewRedisRateLimiter(client, name, WithClientID("pinned"))
		if err != nil {
			t.Fatalf("Failed to create limiter: %v", err)
		}
		rl.SetRate(ctx, Config{Mode: ModePerClient, Rate: 1, Interval: time.Second})
		if ok, err := rl.TryAcquire(ctx); err != nil || !ok {
			t.Fatalf("TryAcquire failed: (%v, %v)", ok, err)
		}

		exists, err := client.Exists(ctx, "ratelimiter:"+name+":value:pinned").Result()
		if err != nil {
			t.Fatalf("Redis Exists failed: %v", err)
		}
		if exists == 0 {
			t.Error("Expected the per-client sub-ledger to be keyed by the pinned client id")
		}
	})
}
