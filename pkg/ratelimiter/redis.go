package ratelimiter

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"github.com/ssgreg/logf"
	"go.uber.org/atomic"
)

//go:embed try_consume.lua
var tryConsumeSrc string

//go:embed available_permits.lua
var availablePermitsSrc string

//go:embed try_set_rate.lua
var trySetRateSrc string

//go:embed set_rate.lua
var setRateSrc string

// script pairs Lua source with the SHA it is currently cached under. The SHA
// is swapped atomically when the Redis script cache is flushed (NOSCRIPT).
type script struct {
	src string
	sha atomic.String
}

// RedisRateLimiter is a distributed RateLimiter backed by Redis.
//
// All permit accounting lives in Redis and every transition runs as a single
// Lua script, so any number of limiter instances in any number of processes
// can share one permit budget without a coordinator. Blocked acquirers are
// woken through a pub/sub channel scoped to the limiter name; the channel is
// a latency optimization only and every waiter also retries on its own timer.
type RedisRateLimiter struct {
	client   *redis.Client
	name     string
	opts     options
	clientID string

	consumeScript   *script
	availableScript *script
	trySetScript    *script
	setScript       *script
}

var _ RateLimiter = (*RedisRateLimiter)(nil)

// NewRedisRateLimiter returns a limiter for the named permit pool. It pings
// Redis and preloads the transition scripts, retrying with exponential
// backoff within the configured timeout.
//
// In ModePerClient every limiter instance is its own client identity unless
// WithClientID pins one explicitly.
func NewRedisRateLimiter(client *redis.Client, name string, opts ...Option) (*RedisRateLimiter, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: limiter name must not be empty", ErrInvalidArgument)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	rl := &RedisRateLimiter{
		client:          client,
		name:            name,
		opts:            o,
		clientID:        o.clientID,
		consumeScript:   &script{src: tryConsumeSrc},
		availableScript: &script{src: availablePermitsSrc},
		trySetScript:    &script{src: trySetRateSrc},
		setScript:       &script{src: setRateSrc},
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	ready := func() error {
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		for _, s := range []*script{rl.consumeScript, rl.availableScript, rl.trySetScript, rl.setScript} {
			sha, err := client.ScriptLoad(ctx, s.src).Result()
			if err != nil {
				return err
			}
			s.sha.Store(sha)
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(ready, bo); err != nil {
		return nil, fmt.Errorf("rate limiter %q: connect: %w", name, err)
	}
	return rl, nil
}

func (rl *RedisRateLimiter) configKey() string        { return rl.opts.keyPrefix + rl.name }
func (rl *RedisRateLimiter) valueKey() string         { return rl.configKey() + ":value" }
func (rl *RedisRateLimiter) clientValueKey() string   { return rl.valueKey() + ":" + rl.clientID }
func (rl *RedisRateLimiter) permitsKey() string       { return rl.configKey() + ":permits" }
func (rl *RedisRateLimiter) clientPermitsKey() string { return rl.permitsKey() + ":" + rl.clientID }
func (rl *RedisRateLimiter) clientsKey() string       { return rl.configKey() + ":clients" }
func (rl *RedisRateLimiter) eventsKey() string        { return rl.configKey() + ":events" }

// opContext bounds a single Redis round-trip. Blocking waits never happen
// while an operation is in flight, so the caller context is only narrowed.
func (rl *RedisRateLimiter) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if rl.opts.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, rl.opts.timeout)
}

func (rl *RedisRateLimiter) eval(ctx context.Context, s *script, keys []string, args ...interface{}) (interface{}, error) {
	res, err := rl.client.EvalSha(ctx, s.sha.Load(), keys, args...).Result()
	if err != nil && redis.HasErrorPrefix(err, "NOSCRIPT") {
		// Script cache was flushed (e.g. Redis restart); reload and retry once.
		sha, lerr := rl.client.ScriptLoad(ctx, s.src).Result()
		if lerr != nil {
			return nil, lerr
		}
		s.sha.Store(sha)
		return rl.client.EvalSha(ctx, sha, keys, args...).Result()
	}
	return res, err
}

// TrySetRate applies cfg only if no configuration exists yet. An existing
// ledger is never disturbed, even when its rate differs from cfg.
func (rl *RedisRateLimiter) TrySetRate(ctx context.Context, cfg Config) (bool, error) {
	if err := cfg.validate(); err != nil {
		return false, err
	}
	octx, cancel := rl.opContext(ctx)
	defer cancel()

	res, err := rl.eval(octx, rl.trySetScript,
		[]string{rl.configKey(), rl.eventsKey()},
		cfg.Rate, cfg.Interval.Milliseconds(), int(cfg.Mode), cfg.KeepAlive.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("rate limiter %q: try set rate: %w", rl.name, err)
	}
	applied := toInt64(res) == 1
	if applied {
		rl.opts.logger.Info("rate limiter configured",
			logf.String("limiter", rl.name),
			logf.Int64("rate", cfg.Rate),
			logf.Duration("interval", cfg.Interval))
	}
	return applied, nil
}

// SetRate applies cfg unconditionally and clears all accumulated state,
// including every per-client sub-ledger. Blocked acquirers are woken and
// retry against the new configuration.
func (rl *RedisRateLimiter) SetRate(ctx context.Context, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	octx, cancel := rl.opContext(ctx)
	defer cancel()

	_, err := rl.eval(octx, rl.setScript,
		[]string{rl.configKey(), rl.valueKey(), rl.permitsKey(), rl.clientsKey(), rl.eventsKey()},
		cfg.Rate, cfg.Interval.Milliseconds(), int(cfg.Mode), cfg.KeepAlive.Milliseconds(),
		rl.valueKey()+":", rl.permitsKey()+":")
	if err != nil {
		return fmt.Errorf("rate limiter %q: set rate: %w", rl.name, err)
	}
	rl.opts.logger.Info("rate limiter reconfigured",
		logf.String("limiter", rl.name),
		logf.Int64("rate", cfg.Rate),
		logf.Duration("interval", cfg.Interval))
	return nil
}

// consumeResult is the outcome of one atomic ledger transition.
type consumeResult struct {
	granted   bool
	available int64
	// wait is the hint for blocked callers: the earliest moment at which
	// enough permits will have lapsed, relative to the store clock.
	wait time.Duration
}

func (rl *RedisRateLimiter) tryConsumeOnce(ctx context.Context, permits int64) (consumeResult, error) {
	octx, cancel := rl.opContext(ctx)
	defer cancel()

	res, err := rl.eval(octx, rl.consumeScript,
		[]string{
			rl.configKey(), rl.valueKey(), rl.clientValueKey(),
			rl.permitsKey(), rl.clientPermitsKey(), rl.eventsKey(), rl.clientsKey(),
		},
		permits, xid.New().String(), rl.clientID)
	if err != nil {
		return consumeResult{}, fmt.Errorf("rate limiter %q: try consume: %w", rl.name, err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return consumeResult{}, fmt.Errorf("rate limiter %q: unexpected script reply %v", rl.name, res)
	}
	switch code := toInt64(vals[0]); code {
	case 1:
		return consumeResult{granted: true, available: toInt64(vals[1])}, nil
	case 0:
		return consumeResult{wait: time.Duration(toInt64(vals[1])) * time.Millisecond}, nil
	case -2:
		return consumeResult{}, fmt.Errorf("rate limiter %q: %w", rl.name, ErrExceedsRate)
	case -3:
		return consumeResult{}, fmt.Errorf("rate limiter %q: %w", rl.name, ErrRateNotSet)
	default:
		return consumeResult{}, fmt.Errorf("rate limiter %q: unexpected script result code %d", rl.name, code)
	}
}

// TryAcquire acquires one permit if it is immediately available.
func (rl *RedisRateLimiter) TryAcquire(ctx context.Context) (bool, error) {
	return rl.TryAcquireN(ctx, 1)
}

// TryAcquireN acquires permits if all are immediately available.
func (rl *RedisRateLimiter) TryAcquireN(ctx context.Context, permits int64) (bool, error) {
	if err := validatePermits(permits); err != nil {
		return false, err
	}
	start := time.Now()
	res, err := rl.tryConsumeOnce(ctx, permits)
	rl.opts.recorder.Observe(metricLatency, time.Since(start).Seconds(), map[string]string{"limiter": rl.name})
	if err != nil {
		rl.opts.recorder.Add(metricErrors, 1, map[string]string{"limiter": rl.name})
		return false, err
	}
	rl.recordDecision(res.granted)
	return res.granted, nil
}

// Acquire blocks until one permit is acquired or ctx is done.
func (rl *RedisRateLimiter) Acquire(ctx context.Context) error {
	return rl.AcquireN(ctx, 1)
}

// AcquireN blocks until permits are acquired or ctx is done.
func (rl *RedisRateLimiter) AcquireN(ctx context.Context, permits int64) error {
	if err := validatePermits(permits); err != nil {
		return err
	}
	_, err := rl.acquireSlow(ctx, permits, time.Time{})
	return err
}

// TryAcquireFor acquires one permit, waiting up to timeout.
func (rl *RedisRateLimiter) TryAcquireFor(ctx context.Context, timeout time.Duration) (bool, error) {
	return rl.TryAcquireNFor(ctx, 1, timeout)
}

// TryAcquireNFor acquires permits, waiting up to timeout. A timeout <= 0 is
// the non-blocking case. Timing out is a normal (false, nil) result.
func (rl *RedisRateLimiter) TryAcquireNFor(ctx context.Context, permits int64, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		return rl.TryAcquireN(ctx, permits)
	}
	if err := validatePermits(permits); err != nil {
		return false, err
	}
	return rl.acquireSlow(ctx, permits, time.Now().Add(timeout))
}

// GetConfig returns the current configuration, or ErrRateNotSet.
func (rl *RedisRateLimiter) GetConfig(ctx context.Context) (Config, error) {
	octx, cancel := rl.opContext(ctx)
	defer cancel()

	vals, err := rl.client.HGetAll(octx, rl.configKey()).Result()
	if err != nil {
		return Config{}, fmt.Errorf("rate limiter %q: get config: %w", rl.name, err)
	}
	if len(vals) == 0 {
		return Config{}, fmt.Errorf("rate limiter %q: %w", rl.name, ErrRateNotSet)
	}
	rate, _ := strconv.ParseInt(vals["rate"], 10, 64)
	intervalMs, _ := strconv.ParseInt(vals["interval"], 10, 64)
	mode, _ := strconv.ParseInt(vals["mode"], 10, 64)
	keepAliveMs, _ := strconv.ParseInt(vals["keepalive"], 10, 64)
	return Config{
		Mode:      Mode(mode),
		Rate:      rate,
		Interval:  time.Duration(intervalMs) * time.Millisecond,
		KeepAlive: time.Duration(keepAliveMs) * time.Millisecond,
	}, nil
}

// AvailablePermits returns the available permit count after lazy expiry,
// without consuming any.
func (rl *RedisRateLimiter) AvailablePermits(ctx context.Context) (int64, error) {
	octx, cancel := rl.opContext(ctx)
	defer cancel()

	res, err := rl.eval(octx, rl.availableScript,
		[]string{
			rl.configKey(), rl.valueKey(), rl.clientValueKey(),
			rl.permitsKey(), rl.clientPermitsKey(),
		})
	if err != nil {
		return 0, fmt.Errorf("rate limiter %q: available permits: %w", rl.name, err)
	}
	n := toInt64(res)
	if n == -3 {
		return 0, fmt.Errorf("rate limiter %q: %w", rl.name, ErrRateNotSet)
	}
	return n, nil
}

func (rl *RedisRateLimiter) recordDecision(granted bool) {
	result := "denied"
	if granted {
		result = "granted"
	}
	rl.opts.recorder.Add(metricAcquire, 1, map[string]string{"limiter": rl.name, "result": result})
}

func toInt64(val interface{}) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case float64:
		return int64(v)
	default:
		return 0
	}
}
