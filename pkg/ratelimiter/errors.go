package ratelimiter

import "errors"

var (
	// ErrInvalidArgument is returned for malformed input (permits < 1,
	// rate <= 0, interval <= 0). It is reported before any store access,
	// so a failed call is never partially applied.
	ErrInvalidArgument = errors.New("ratelimiter: invalid argument")

	// ErrRateNotSet is returned when an operation requires a configuration
	// and none has been applied via SetRate or TrySetRate.
	ErrRateNotSet = errors.New("ratelimiter: rate is not set")

	// ErrExceedsRate is returned when a request asks for more permits than
	// the configured rate. Such a request can never be granted, so callers
	// must not retry it.
	ErrExceedsRate = errors.New("ratelimiter: requested permits exceed configured rate")
)
