package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateIntervalUnitDuration(t *testing.T) {
	require.Equal(t, 30*time.Second, UnitSeconds.Duration(30))
	require.Equal(t, 5*time.Minute, UnitMinutes.Duration(5))
	require.Equal(t, 2*time.Hour, UnitHours.Duration(2))
	require.Equal(t, 48*time.Hour, UnitDays.Duration(2))
}

func TestUnitAdaptersDelegate(t *testing.T) {
	ctx := context.Background()
	rl := NewMemoryRateLimiter("compat")

	applied, err := TrySetRateUnit(ctx, rl, ModeOverall, 2, 1, UnitMinutes)
	require.NoError(t, err)
	require.True(t, applied)

	cfg, err := rl.GetConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, Config{Mode: ModeOverall, Rate: 2, Interval: time.Minute}, cfg)

	ok, err := TryAcquireUnit(ctx, rl, 1, 0, UnitSeconds)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, SetRateUnit(ctx, rl, ModeOverall, 5, 10, UnitSeconds))
	available, err := rl.AvailablePermits(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 5, available)
}
