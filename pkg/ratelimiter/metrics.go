package ratelimiter

// Metric names passed to MetricsRecorder implementations.
const (
	// metricAcquire counts acquisition decisions; tagged with "limiter" and
	// "result" ("granted" or "denied").
	metricAcquire = "ratelimiter.acquire"

	// metricLatency observes the duration of a single non-blocking decision
	// in seconds; tagged with "limiter".
	metricLatency = "ratelimiter.latency"

	// metricWaitTime observes how long a blocking acquire waited before
	// being granted, in seconds; tagged with "limiter".
	metricWaitTime = "ratelimiter.wait_time"

	// metricErrors counts store/transaction failures; tagged with "limiter".
	metricErrors = "ratelimiter.errors"
)

// MetricsRecorder receives counters and timing observations from limiters.
// Implementations must be safe for concurrent use.
type MetricsRecorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}
