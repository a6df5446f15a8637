package ratelimiter

import (
	"context"
	"fmt"
	"time"
)

// Mode selects how the permit budget is shared between acquirers.
type Mode int

const (
	// ModeOverall shares a single permit pool across every acquirer.
	ModeOverall Mode = iota

	// ModePerClient gives each limiter instance (client identity) its own
	// permit pool under the same rate.
	ModePerClient
)

func (m Mode) String() string {
	switch m {
	case ModeOverall:
		return "overall"
	case ModePerClient:
		return "per_client"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Config is the rate limiter configuration. Once set it is immutable until
// replaced by SetRate, which also discards all accumulated permit state.
type Config struct {
	// Mode selects the permit pool sharing strategy.
	Mode Mode

	// Rate is the number of permits granted per Interval. Must be positive.
	Rate int64

	// Interval is the replenishment window. A consumed permit is returned to
	// the pool exactly Interval after it was consumed. Must be positive.
	Interval time.Duration

	// KeepAlive, when positive, expires the whole ledger (and any per-client
	// sub-ledger) after this much time without activity, allowing idle
	// limiters to be garbage collected. Zero disables idle expiry.
	KeepAlive time.Duration
}

func (c Config) validate() error {
	if c.Mode != ModeOverall && c.Mode != ModePerClient {
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidArgument, int(c.Mode))
	}
	if c.Rate <= 0 {
		return fmt.Errorf("%w: rate must be positive, got %d", ErrInvalidArgument, c.Rate)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidArgument, c.Interval)
	}
	if c.KeepAlive < 0 {
		return fmt.Errorf("%w: keep-alive must not be negative, got %s", ErrInvalidArgument, c.KeepAlive)
	}
	return nil
}

func validatePermits(permits int64) error {
	if permits < 1 {
		return fmt.Errorf("%w: permits must be at least 1, got %d", ErrInvalidArgument, permits)
	}
	return nil
}

// RateLimiter is a permit-based rate limiter shared by any number of
// concurrent acquirers.
//
// Permit-count parameters are explicit in the ...N variants; the plain
// variants acquire a single permit. Timed variants treat a timeout <= 0 as
// the non-blocking case.
type RateLimiter interface {
	// TrySetRate applies the configuration only if none has been set yet.
	// It reports whether the configuration was applied; an existing ledger
	// is never disturbed, even if its rate differs.
	TrySetRate(ctx context.Context, cfg Config) (bool, error)

	// SetRate applies the configuration unconditionally and clears all
	// accumulated permit state. Blocked acquirers are woken and retry
	// against the new configuration.
	SetRate(ctx context.Context, cfg Config) error

	// TryAcquire acquires one permit if it is immediately available.
	TryAcquire(ctx context.Context) (bool, error)

	// TryAcquireN acquires the given number of permits if all are
	// immediately available. Requests for more permits than the configured
	// rate fail with ErrExceedsRate, since they can never be satisfied.
	TryAcquireN(ctx context.Context, permits int64) (bool, error)

	// Acquire blocks until one permit is acquired or ctx is done.
	Acquire(ctx context.Context) error

	// AcquireN blocks until the given number of permits is acquired or ctx
	// is done.
	AcquireN(ctx context.Context, permits int64) error

	// TryAcquireFor acquires one permit, waiting up to timeout.
	TryAcquireFor(ctx context.Context, timeout time.Duration) (bool, error)

	// TryAcquireNFor acquires the given number of permits, waiting up to
	// timeout. A timed-out wait is a normal (false, nil) result and never
	// consumes permits.
	TryAcquireNFor(ctx context.Context, permits int64, timeout time.Duration) (bool, error)

	// GetConfig returns the current configuration, or ErrRateNotSet if none
	// has been applied.
	GetConfig(ctx context.Context) (Config, error)

	// AvailablePermits returns the number of currently available permits
	// after lazy expiry, without consuming any.
	AvailablePermits(ctx context.Context) (int64, error)
}
