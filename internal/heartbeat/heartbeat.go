// Package heartbeat implements the Heartbeat Runner from spec.md §4.7: an
// adaptive self-prompt interval, biased toward a configured default and
// clamped to [minMs, maxMs], shortened by unread events and lengthened by
// consecutive no-op runs. Grounded on vinayprograms-agent's checkpoint
// bookkeeping idiom for the run-result ledger.
package heartbeat

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/vinayprograms/agentcore/internal/budget"
	"github.com/vinayprograms/agentcore/internal/telemetry/log"
	agentotel "github.com/vinayprograms/agentcore/internal/telemetry/otel"
)

// intervalHistogram records heartbeat.interval_ms, a single
// process-wide instrument shared across every channel's Runner.
var intervalHistogram = func() metric.Int64Histogram {
	h, _ := agentotel.Meter("agentcore/heartbeat").Int64Histogram("heartbeat.interval_ms")
	return h
}()

// Result classifies the outcome of a single heartbeat run.
type Result string

const (
	ResultOK   Result = "HEARTBEAT_OK" // no output; interval may grow
	ResultSent Result = "SENT"         // output delivered; interval resets
)

// ActiveHours restricts heartbeat firing to a daily window, in minutes
// since midnight UTC.
type ActiveHours struct {
	Enabled  bool
	StartMin int
	EndMin   int
}

func (a ActiveHours) contains(t time.Time) bool {
	if !a.Enabled {
		return true
	}
	minuteOfDay := t.Hour()*60 + t.Minute()
	if a.StartMin <= a.EndMin {
		return minuteOfDay >= a.StartMin && minuteOfDay < a.EndMin
	}
	return minuteOfDay >= a.StartMin || minuteOfDay < a.EndMin
}

// Config tunes the adaptive-interval policy.
type Config struct {
	MinMs       int64
	MaxMs       int64
	EveryMs     int64 // the bias target
	ActiveHours ActiveHours
	// GrowthFactor multiplies the interval after each consecutive OK run;
	// ShrinkFactor divides it when unreadEvents > 0. Both default to 1.5.
	GrowthFactor float64
	ShrinkFactor float64
}

// TurnFunc runs one heartbeat turn for a channel and reports its outcome.
type TurnFunc func(ctx context.Context, channelID string) (Result, error)

// Runner owns one channel's adaptive interval state.
type Runner struct {
	cfg             Config
	channelID       string
	budget          *budget.Budget
	turn            TurnFunc
	logger          zerolog.Logger
	currentInterval int64
	consecutiveOK   int
}

// NewRunner builds a Runner for one channel.
func NewRunner(cfg Config, channelID string, b *budget.Budget, turn TurnFunc) *Runner {
	interval := cfg.EveryMs
	if interval <= 0 {
		interval = cfg.MinMs
	}
	if cfg.GrowthFactor <= 1 {
		cfg.GrowthFactor = 1.5
	}
	if cfg.ShrinkFactor <= 1 {
		cfg.ShrinkFactor = 1.5
	}
	return &Runner{
		cfg:             cfg,
		channelID:       channelID,
		budget:          b,
		turn:            turn,
		logger:          log.Component("heartbeat").With().Str("channel", channelID).Logger(),
		currentInterval: clamp(interval, cfg.MinMs, cfg.MaxMs),
	}
}

func clamp(v, min, max int64) int64 {
	if min > 0 && v < min {
		v = min
	}
	if max > 0 && v > max {
		v = max
	}
	return v
}

// NextInterval returns the next wait, biased toward everyMs, shortened
// when unreadEvents > 0, and clamped to [minMs, maxMs] (spec.md §4.7).
func (r *Runner) NextInterval(unreadEvents int) time.Duration {
	interval := r.currentInterval
	if unreadEvents > 0 {
		interval = int64(float64(interval) / r.cfg.ShrinkFactor)
	}
	interval = clamp(interval, r.cfg.MinMs, r.cfg.MaxMs)
	intervalHistogram.Record(context.Background(), interval)
	return time.Duration(interval) * time.Millisecond
}

// Fire runs one heartbeat tick: checks active hours, then the budget, then
// invokes turn(channelId) and updates the adaptive interval from its
// result. Outside active hours the run is skipped without scheduling
// penalty (spec.md: "not rescheduled aggressively").
func (r *Runner) Fire(ctx context.Context, now time.Time) (ran bool, result Result, err error) {
	if !r.cfg.ActiveHours.contains(now) {
		return false, "", nil
	}
	if r.budget != nil {
		if allow, _ := r.budget.TryConsume(r.channelID, now); !allow {
			return false, "", nil
		}
	}

	res, runErr := r.turn(ctx, r.channelID)
	if runErr != nil {
		r.logger.Warn().Err(runErr).Msg("heartbeat turn failed")
		return true, "", runErr
	}

	switch res {
	case ResultSent:
		r.consecutiveOK = 0
		r.currentInterval = clamp(r.cfg.EveryMs, r.cfg.MinMs, r.cfg.MaxMs)
	case ResultOK:
		r.consecutiveOK++
		grown := int64(float64(r.currentInterval) * r.cfg.GrowthFactor)
		r.currentInterval = clamp(grown, r.cfg.MinMs, r.cfg.MaxMs)
	}
	return true, res, nil
}
