package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid overall",
			cfg:  Config{Mode: ModeOverall, Rate: 10, Interval: time.Second},
		},
		{
			name: "valid per client with keep-alive",
			cfg:  Config{Mode: ModePerClient, Rate: 1, Interval: time.Minute, KeepAlive: time.Hour},
		},
		{
			name:    "zero rate",
			cfg:     Config{Mode: ModeOverall, Rate: 0, Interval: time.Second},
			wantErr: true,
		},
		{
			name:    "negative rate",
			cfg:     Config{Mode: ModeOverall, Rate: -5, Interval: time.Second},
			wantErr: true,
		},
		{
			name:    "zero interval",
			cfg:     Config{Mode: ModeOverall, Rate: 1, Interval: 0},
			wantErr: true,
		},
		{
			name:    "negative keep-alive",
			cfg:     Config{Mode: ModeOverall, Rate: 1, Interval: time.Second, KeepAlive: -time.Second},
			wantErr: true,
		},
		{
			name:    "unknown mode",
			cfg:     Config{Mode: Mode(42), Rate: 1, Interval: time.Second},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidatePermits(t *testing.T) {
	require.NoError(t, validatePermits(1))
	require.NoError(t, validatePermits(100))
	require.ErrorIs(t, validatePermits(0), ErrInvalidArgument)
	require.ErrorIs(t, validatePermits(-1), ErrInvalidArgument)
}

func TestModeString(t *testing.T) {
	require.Equal(t, "overall", ModeOverall.String())
	require.Equal(t, "per_client", ModePerClient.String())
	require.Equal(t, "mode(7)", Mode(7).String())
}
