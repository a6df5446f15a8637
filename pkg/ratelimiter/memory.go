package ratelimiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/deque"
)

// permitEntry records one acquisition: how many permits it took and when
// they lapse back into the pool.
type permitEntry struct {
	expireAt time.Time
	permits  int64
}

// memoryLedger mirrors the Redis ledger for one permit pool: an available
// counter plus the ordered queue of not-yet-expired consumptions. Entries
// are appended with a fixed interval, so the queue stays sorted by expiry.
type memoryLedger struct {
	available  int64
	values     *deque.Deque
	lastAccess time.Time
}

// MemoryRateLimiter is an in-process RateLimiter with the same semantics as
// RedisRateLimiter.
//
// Its state is local to the process and is not shared across replicas; it is
// intended for unit tests, local development, and single-instance
// deployments. Replenishment is the same lazy, pull-based expiry used by the
// Redis scripts, computed on each operation, with no background timer.
type MemoryRateLimiter struct {
	name string
	opts options

	mu         sync.Mutex
	cfg        *Config
	pools      map[string]*memoryLedger
	lastAccess time.Time
	// wake is closed and replaced to broadcast "permits may be available"
	// to every blocked acquirer.
	wake chan struct{}
}

var _ RateLimiter = (*MemoryRateLimiter)(nil)

// NewMemoryRateLimiter constructs a MemoryRateLimiter with no configuration
// set. The name is used only for logging and metric tags.
func NewMemoryRateLimiter(name string, opts ...Option) *MemoryRateLimiter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryRateLimiter{
		name:  name,
		opts:  o,
		pools: make(map[string]*memoryLedger),
		wake:  make(chan struct{}),
	}
}

// gcLocked applies keep-alive idle expiry: first to the whole ledger, then
// to individual per-client pools.
func (m *MemoryRateLimiter) gcLocked(now time.Time) {
	if m.cfg == nil || m.cfg.KeepAlive <= 0 {
		return
	}
	if now.Sub(m.lastAccess) > m.cfg.KeepAlive {
		m.cfg = nil
		m.pools = make(map[string]*memoryLedger)
		return
	}
	for key, pool := range m.pools {
		if now.Sub(pool.lastAccess) > m.cfg.KeepAlive {
			delete(m.pools, key)
		}
	}
}

func (m *MemoryRateLimiter) touchLocked(now time.Time) {
	m.lastAccess = now
}

func (m *MemoryRateLimiter) broadcastLocked() {
	close(m.wake)
	m.wake = make(chan struct{})
}

// poolLocked resolves the caller to its permit pool, creating it on first
// use. ModeOverall uses a single shared pool; ModePerClient keys pools by
// the limiter's client identity.
func (m *MemoryRateLimiter) poolLocked(now time.Time) *memoryLedger {
	key := ""
	if m.cfg.Mode == ModePerClient {
		key = m.opts.clientID
	}
	pool, ok := m.pools[key]
	if !ok {
		pool = &memoryLedger{available: m.cfg.Rate, values: deque.New()}
		m.pools[key] = pool
	}
	pool.lastAccess = now
	return pool
}

// expireLocked credits every entry whose expiry has passed.
func (m *MemoryRateLimiter) expireLocked(pool *memoryLedger, now time.Time) {
	for pool.values.Len() > 0 {
		entry := pool.values.Front().(permitEntry)
		if entry.expireAt.After(now) {
			break
		}
		pool.values.PopFront()
		pool.available += entry.permits
		if pool.available > m.cfg.Rate {
			pool.available = m.cfg.Rate
		}
	}
}

func (m *MemoryRateLimiter) tryConsumeLocked(permits int64, now time.Time) (consumeResult, error) {
	if m.cfg == nil {
		return consumeResult{}, fmt.Errorf("rate limiter %q: %w", m.name, ErrRateNotSet)
	}
	if permits > m.cfg.Rate {
		return consumeResult{}, fmt.Errorf("rate limiter %q: %w", m.name, ErrExceedsRate)
	}
	m.touchLocked(now)
	pool := m.poolLocked(now)
	m.expireLocked(pool, now)

	if pool.available >= permits {
		pool.available -= permits
		pool.values.PushBack(permitEntry{expireAt: now.Add(m.cfg.Interval), permits: permits})
		m.broadcastLocked()
		return consumeResult{granted: true, available: pool.available}, nil
	}

	// Wait hint: the earliest expiry by which enough permits will have
	// lapsed.
	needed := permits - pool.available
	wait := m.cfg.Interval
	var freed int64
	for i := 0; i < pool.values.Len(); i++ {
		entry := pool.values.At(i).(permitEntry)
		freed += entry.permits
		if freed >= needed {
			wait = entry.expireAt.Sub(now)
			break
		}
	}
	return consumeResult{wait: wait}, nil
}

// TrySetRate applies cfg only if no configuration is set (or the previous
// one has expired via keep-alive).
func (m *MemoryRateLimiter) TrySetRate(ctx context.Context, cfg Config) (bool, error) {
	if err := cfg.validate(); err != nil {
		return false, err
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gcLocked(now)
	if m.cfg != nil {
		return false, nil
	}
	c := cfg
	m.cfg = &c
	m.pools = make(map[string]*memoryLedger)
	m.touchLocked(now)
	m.broadcastLocked()
	return true, nil
}

// SetRate applies cfg unconditionally and clears all accumulated state.
func (m *MemoryRateLimiter) SetRate(ctx context.Context, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	c := cfg
	m.cfg = &c
	m.pools = make(map[string]*memoryLedger)
	m.touchLocked(now)
	m.broadcastLocked()
	return nil
}

// TryAcquire acquires one permit if it is immediately available.
func (m *MemoryRateLimiter) TryAcquire(ctx context.Context) (bool, error) {
	return m.TryAcquireN(ctx, 1)
}

// TryAcquireN acquires permits if all are immediately available.
func (m *MemoryRateLimiter) TryAcquireN(ctx context.Context, permits int64) (bool, error) {
	if err := validatePermits(permits); err != nil {
		return false, err
	}
	now := time.Now()
	m.mu.Lock()
	m.gcLocked(now)
	res, err := m.tryConsumeLocked(permits, now)
	m.mu.Unlock()
	if err != nil {
		return false, err
	}
	m.recordDecision(res.granted)
	return res.granted, nil
}

// Acquire blocks until one permit is acquired or ctx is done.
func (m *MemoryRateLimiter) Acquire(ctx context.Context) error {
	return m.AcquireN(ctx, 1)
}

// AcquireN blocks until permits are acquired or ctx is done.
func (m *MemoryRateLimiter) AcquireN(ctx context.Context, permits int64) error {
	if err := validatePermits(permits); err != nil {
		return err
	}
	_, err := m.acquireSlow(ctx, permits, time.Time{})
	return err
}

// TryAcquireFor acquires one permit, waiting up to timeout.
func (m *MemoryRateLimiter) TryAcquireFor(ctx context.Context, timeout time.Duration) (bool, error) {
	return m.TryAcquireNFor(ctx, 1, timeout)
}

// TryAcquireNFor acquires permits, waiting up to timeout. A timeout <= 0 is
// the non-blocking case; timing out is a normal (false, nil) result.
func (m *MemoryRateLimiter) TryAcquireNFor(ctx context.Context, permits int64, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		return m.TryAcquireN(ctx, permits)
	}
	if err := validatePermits(permits); err != nil {
		return false, err
	}
	return m.acquireSlow(ctx, permits, time.Now().Add(timeout))
}

// acquireSlow mirrors the Redis blocking loop with an in-process broadcast
// channel in place of pub/sub.
func (m *MemoryRateLimiter) acquireSlow(ctx context.Context, permits int64, deadline time.Time) (bool, error) {
	for {
		now := time.Now()
		m.mu.Lock()
		m.gcLocked(now)
		res, err := m.tryConsumeLocked(permits, now)
		wakeCh := m.wake
		m.mu.Unlock()
		if err != nil {
			return false, err
		}
		if res.granted {
			m.recordDecision(true)
			return true, nil
		}

		wait := res.wait
		if wait < minRetryWait {
			wait = minRetryWait
		}
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				m.recordDecision(false)
				return false, nil
			}
			if wait > remaining {
				wait = remaining
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, fmt.Errorf("rate limiter %q: acquire: %w", m.name, ctx.Err())
		case <-timer.C:
		case <-wakeCh:
			timer.Stop()
		}
	}
}

// GetConfig returns the current configuration, or ErrRateNotSet.
func (m *MemoryRateLimiter) GetConfig(ctx context.Context) (Config, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gcLocked(now)
	if m.cfg == nil {
		return Config{}, fmt.Errorf("rate limiter %q: %w", m.name, ErrRateNotSet)
	}
	return *m.cfg, nil
}

// AvailablePermits returns the available permit count after lazy expiry,
// without consuming any.
func (m *MemoryRateLimiter) AvailablePermits(ctx context.Context) (int64, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gcLocked(now)
	if m.cfg == nil {
		return 0, fmt.Errorf("rate limiter %q: %w", m.name, ErrRateNotSet)
	}
	pool := m.poolLocked(now)
	m.expireLocked(pool, now)
	m.touchLocked(now)
	return pool.available, nil
}

func (m *MemoryRateLimiter) recordDecision(granted bool) {
	result := "denied"
	if granted {
		result = "granted"
	}
	m.opts.recorder.Add(metricAcquire, 1, map[string]string{"limiter": m.name, "result": result})
}
