package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIntervalGrowsOnConsecutiveOK(t *testing.T) {
	cfg := Config{MinMs: 1000, MaxMs: 60000, EveryMs: 5000}
	r := NewRunner(cfg, "chan-1", nil, func(ctx context.Context, channelID string) (Result, error) {
		return ResultOK, nil
	})

	start := r.currentInterval
	ran, res, err := r.Fire(context.Background(), time.Now())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, ResultOK, res)
	require.Greater(t, r.currentInterval, start)
}

func TestIntervalResetsOnSent(t *testing.T) {
	cfg := Config{MinMs: 1000, MaxMs: 60000, EveryMs: 5000}
	calls := 0
	r := NewRunner(cfg, "chan-1", nil, func(ctx context.Context, channelID string) (Result, error) {
		calls++
		if calls == 1 {
			return ResultOK, nil
		}
		return ResultSent, nil
	})

	_, _, err := r.Fire(context.Background(), time.Now())
	require.NoError(t, err)
	grown := r.currentInterval
	require.Greater(t, grown, cfg.EveryMs)

	_, res, err := r.Fire(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, ResultSent, res)
	require.Equal(t, cfg.EveryMs, r.currentInterval)
}

func TestIntervalClampedToMax(t *testing.T) {
	cfg := Config{MinMs: 1000, MaxMs: 10000, EveryMs: 9000, GrowthFactor: 3}
	r := NewRunner(cfg, "chan-1", nil, func(ctx context.Context, channelID string) (Result, error) {
		return ResultOK, nil
	})
	for i := 0; i < 5; i++ {
		_, _, err := r.Fire(context.Background(), time.Now())
		require.NoError(t, err)
	}
	require.LessOrEqual(t, r.currentInterval, cfg.MaxMs)
}

func TestOutsideActiveHoursSkipsRun(t *testing.T) {
	cfg := Config{MinMs: 1000, MaxMs: 60000, EveryMs: 5000, ActiveHours: ActiveHours{Enabled: true, StartMin: 9 * 60, EndMin: 17 * 60}}
	var fired bool
	r := NewRunner(cfg, "chan-1", nil, func(ctx context.Context, channelID string) (Result, error) {
		fired = true
		return ResultOK, nil
	})

	night := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	ran, _, err := r.Fire(context.Background(), night)
	require.NoError(t, err)
	require.False(t, ran)
	require.False(t, fired)
}

func TestUnreadEventsShortenNextInterval(t *testing.T) {
	cfg := Config{MinMs: 1000, MaxMs: 60000, EveryMs: 10000, ShrinkFactor: 2}
	r := NewRunner(cfg, "chan-1", nil, nil)
	quiet := r.NextInterval(0)
	busy := r.NextInterval(5)
	require.Less(t, busy, quiet)
}
