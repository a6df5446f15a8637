// Package ratelimiter provides a distributed, permit-based rate limiter that
// lets many independent processes share a single permit budget without a
// central broker process.
//
// The primary entry point is the RateLimiter interface:
//
//	rl, _ := ratelimiter.NewRedisRateLimiter(client, "api-calls")
//	rl.TrySetRate(ctx, ratelimiter.Config{
//		Mode:     ratelimiter.ModeOverall,
//		Rate:     100,
//		Interval: time.Second,
//	})
//	ok, err := rl.TryAcquire(ctx)
//
// # Overview
//
// A limiter grants up to Rate permits per Interval. Consuming a permit
// records an expiry timestamp Interval in the future; the permit returns to
// the pool when that timestamp passes. Replenishment is lazy and pull-based:
// it is computed from those committed timestamps at the moment of the next
// operation, so there is no background scheduler and no cluster-wide ticking
// coordinator to keep in sync.
//
// # Modes
//
// ModeOverall shares one pool across every acquirer. ModePerClient gives
// each client identity (by default, each limiter instance) an independent
// pool under the same rate; sub-pools are created on first use and garbage
// collected by the keep-alive idle expiry.
//
// # Backends
//
// The package provides two implementations with the same API:
//
//   - MemoryRateLimiter: an in-process limiter. Useful for unit tests, local
//     development, and single-instance deployments. Its state is local to
//     the process and does not enforce a global limit across replicas.
//
//   - RedisRateLimiter: a distributed limiter backed by Redis. Every state
//     transition runs as a single Lua script, which makes it safe to use
//     across many application instances while enforcing one global budget.
//
// # Operations
//
// The operation set follows the blocking/non-blocking/timed triad:
//
//   - TrySetRate sets the configuration only if none exists ("set once").
//   - SetRate always (re)sets the configuration and clears accumulated
//     state; blocked acquirers are woken and retry against the new config.
//   - TryAcquire / TryAcquireN return a decision immediately.
//   - Acquire / AcquireN block until granted or the context is done.
//   - TryAcquireFor / TryAcquireNFor block up to a timeout; a timeout <= 0
//     degrades to the non-blocking variant and timing out is a normal
//     (false, nil) result, not an error.
//   - GetConfig and AvailablePermits read without consuming.
//
// # Blocking and Wakeup
//
// A denied attempt comes back with a wait hint: the earliest moment at which
// enough permits will have lapsed. Blocked acquirers wait on a per-limiter
// pub/sub channel (Redis) or an in-process broadcast (memory) for at most
// that long, then retry the atomic transition. The wakeup channel is
// at-least-once and purely a latency optimization; if it fails, waiters
// degrade to their own timer-driven retries. There is no FIFO guarantee
// among competing waiters.
//
// # Context and Error Policy
//
// Every operation takes a context.Context and passes it through to the
// store. Store errors are returned to the caller wrapped with the operation
// and limiter name; they are never converted into a denial, since that would
// misrepresent an outage as a rate-limit hit. Three sentinel conditions are
// distinguishable with errors.Is:
//
//   - ErrInvalidArgument: rejected before any store access.
//   - ErrRateNotSet: no configuration has been applied.
//   - ErrExceedsRate: the request asks for more permits than Rate and can
//     never be granted; do not retry it.
//
// # Storage Details
//
// RedisRateLimiter stores the ledger for a limiter named N under keys
// prefixed with "ratelimiter:" (see WithPrefix):
//
//   - "N" - hash holding rate, interval, mode and keepalive
//   - "N:value[:client]" - available permit counter per pool
//   - "N:permits[:client]" - sorted set of consumptions, scored by the
//     expiry timestamp, one member per acquisition carrying its permit count
//   - "N:clients" - client ids seen by ModePerClient
//   - "N:events" - pub/sub wakeup channel
//
// Timestamps are read from the Redis server clock inside the scripts, so
// every participant shares one clock regardless of local skew. Expiry is
// tracked per acquisition with millisecond granularity: permits consumed by
// one call lapse together, exactly Interval after that call.
//
// When Config.KeepAlive is set, every ledger key carries an idle TTL that is
// refreshed by each operation, so abandoned limiters and per-client
// sub-pools disappear on their own.
//
// # Configuration
//
// Limiters are configured using the Functional Options pattern:
//
//	rl, _ := ratelimiter.NewRedisRateLimiter(client, "api-calls",
//		ratelimiter.WithPrefix("myapp:rl:"),
//		ratelimiter.WithTimeout(2*time.Second),
//		ratelimiter.WithRecorder(recorder),
//		ratelimiter.WithLogger(logger),
//	)
//
// Supported options: WithPrefix, WithTimeout (per round-trip), WithRecorder
// (metrics backend, see PrometheusRecorder), WithLogger (ssgreg/logf) and
// WithClientID (ModePerClient identity).
package ratelimiter
