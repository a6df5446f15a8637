package ratelimiter

import (
	"time"

	"github.com/rs/xid"
	"github.com/ssgreg/logf"
)

type options struct {
	keyPrefix string
	timeout   time.Duration
	recorder  MetricsRecorder
	logger    *logf.Logger
	clientID  string
}

func defaultOptions() options {
	return options{
		keyPrefix: "ratelimiter:",
		timeout:   5 * time.Second,
		recorder:  &NoOpMetricsRecorder{},
		logger:    logf.NewDisabledLogger(),
		clientID:  xid.New().String(),
	}
}

// Option configures a limiter.
type Option func(*options)

// WithPrefix sets the key prefix for all ledger keys (default "ratelimiter:").
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithTimeout bounds each single store round-trip (default 5s). It does not
// bound blocking acquires; those are bounded by their own timeout or context.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithRecorder injects a custom metrics backend.
func WithRecorder(r MetricsRecorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithLogger injects a logger. The default logger discards everything.
func WithLogger(l *logf.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClientID pins the client identity used by ModePerClient sub-pools.
// By default every limiter instance gets a fresh unique id, so each process
// (or each instance within a process) is its own client.
func WithClientID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.clientID = id
		}
	}
}
