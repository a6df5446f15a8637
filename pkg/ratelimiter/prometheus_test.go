package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	ctx := context.Background()
	rl := NewMemoryRateLimiter("prom", WithRecorder(rec))
	require.NoError(t, rl.SetRate(ctx, Config{Mode: ModeOverall, Rate: 1, Interval: time.Minute}))

	ok, err := rl.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = rl.TryAcquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	granted := rec.events.WithLabelValues(metricAcquire, "prom", "granted")
	denied := rec.events.WithLabelValues(metricAcquire, "prom", "denied")
	require.Equal(t, 1.0, testutil.ToFloat64(granted))
	require.Equal(t, 1.0, testutil.ToFloat64(denied))
}

func TestPrometheusRecorderObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.Observe(metricLatency, 0.25, map[string]string{"limiter": "prom"})

	count := testutil.CollectAndCount(rec.observations, "ratelimiter_observations_seconds")
	require.Equal(t, 1, count)
}
