package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/ssgreg/logf"
)

// minRetryWait floors the wait between attempts so a stale or negative hint
// from the store clock cannot turn the loop into a busy poll.
const minRetryWait = 10 * time.Millisecond

// acquireSlow is the blocking acquisition loop. It subscribes to the limiter
// event channel before the first attempt so a wakeup published between an
// attempt and the wait cannot be missed, then alternates atomic consume
// attempts with bounded waits on {event, wait-hint timer, ctx}.
//
// A zero deadline means wait indefinitely (Acquire); otherwise the loop
// returns (false, nil) once the deadline cannot be met. Waits never hold
// permits, so giving up at any retry boundary has no side effects on the
// ledger.
func (rl *RedisRateLimiter) acquireSlow(ctx context.Context, permits int64, deadline time.Time) (bool, error) {
	sub := rl.client.Subscribe(ctx, rl.eventsKey())
	defer sub.Close()
	if err := rl.confirmSubscription(ctx, sub); err != nil {
		// Notifier delivery is an optimization; timed retries still make
		// progress without it.
		rl.opts.logger.Warn("rate limiter notifier unavailable, relying on timed retries",
			logf.String("limiter", rl.name), logf.Error(err))
	}
	events := sub.Channel()

	start := time.Now()
	for {
		res, err := rl.tryConsumeOnce(ctx, permits)
		if err != nil {
			rl.opts.recorder.Add(metricErrors, 1, map[string]string{"limiter": rl.name})
			return false, err
		}
		if res.granted {
			rl.recordDecision(true)
			rl.opts.recorder.Observe(metricWaitTime, time.Since(start).Seconds(),
				map[string]string{"limiter": rl.name})
			return true, nil
		}

		wait := res.wait
		if wait < minRetryWait {
			wait = minRetryWait
		}
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				rl.recordDecision(false)
				return false, nil
			}
			if wait > remaining {
				wait = remaining
			}
		}

		rl.opts.logger.Debug("rate limiter waiting for permits",
			logf.String("limiter", rl.name),
			logf.Int64("permits", permits),
			logf.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, fmt.Errorf("rate limiter %q: acquire: %w", rl.name, ctx.Err())
		case <-timer.C:
		case <-events:
			// Spurious or duplicate wakeups are fine; the next attempt may
			// still observe a denial and wait again.
			timer.Stop()
		}
	}
}

// confirmSubscription waits for the subscription acknowledgement, retrying
// transient failures with exponential backoff.
func (rl *RedisRateLimiter) confirmSubscription(ctx context.Context, sub *redis.PubSub) error {
	op := func() error {
		rctx, cancel := rl.opContext(ctx)
		defer cancel()
		_, err := sub.Receive(rctx)
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	return backoff.Retry(op, bo)
}
