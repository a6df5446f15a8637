package ratelimiter

import (
	"context"
	"time"
)

// RateIntervalUnit is a legacy time unit for the count-plus-unit API.
//
// Deprecated: pass a time.Duration to the Config-based operations instead.
type RateIntervalUnit int

const (
	UnitSeconds RateIntervalUnit = iota
	UnitMinutes
	UnitHours
	UnitDays
)

// Duration converts a count in this unit into a time.Duration.
func (u RateIntervalUnit) Duration(value int64) time.Duration {
	switch u {
	case UnitMinutes:
		return time.Duration(value) * time.Minute
	case UnitHours:
		return time.Duration(value) * time.Hour
	case UnitDays:
		return time.Duration(value) * 24 * time.Hour
	default:
		return time.Duration(value) * time.Second
	}
}

// TrySetRateUnit sets the rate using a count-plus-unit interval.
//
// Deprecated: use RateLimiter.TrySetRate with a time.Duration interval.
func TrySetRateUnit(ctx context.Context, rl RateLimiter, mode Mode, rate, interval int64, unit RateIntervalUnit) (bool, error) {
	return rl.TrySetRate(ctx, Config{Mode: mode, Rate: rate, Interval: unit.Duration(interval)})
}

// SetRateUnit sets the rate using a count-plus-unit interval.
//
// Deprecated: use RateLimiter.SetRate with a time.Duration interval.
func SetRateUnit(ctx context.Context, rl RateLimiter, mode Mode, rate, interval int64, unit RateIntervalUnit) error {
	return rl.SetRate(ctx, Config{Mode: mode, Rate: rate, Interval: unit.Duration(interval)})
}

// TryAcquireUnit acquires permits waiting up to a count-plus-unit timeout.
//
// Deprecated: use RateLimiter.TryAcquireNFor with a time.Duration timeout.
func TryAcquireUnit(ctx context.Context, rl RateLimiter, permits, timeout int64, unit RateIntervalUnit) (bool, error) {
	return rl.TryAcquireNFor(ctx, permits, unit.Duration(timeout))
}
