// Package log wraps zerolog with the component/session/run field
// conventions used across the core, replacing the teacher's hand-rolled
// JSON logger (internal/logging in the source repo) with the ecosystem
// library the rest of the example pack reaches for.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	baseOnce sync.Once
	base     zerolog.Logger
)

// Base returns the process-wide root logger, writing structured JSON to
// stdout at info level by default.
func Base() zerolog.Logger {
	baseOnce.Do(func() {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		base = zerolog.New(os.Stdout).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	})
	return base
}

// SetOutput redirects the base logger's output (tests, CLI --quiet, etc).
func SetOutput(w io.Writer) {
	Base() // run the one-time default setup first so it cannot replace w later
	base = zerolog.New(w).With().Timestamp().Logger()
}

// SetLevel sets the minimum level for the base logger.
func SetLevel(level zerolog.Level) {
	base = Base().Level(level)
}

// Component returns a child logger scoped to a component name, mirroring
// the teacher's Logger.WithComponent.
func Component(name string) zerolog.Logger {
	return Base().With().Str("component", name).Logger()
}

// WithSession returns a child logger scoped to a session/run pair.
func WithSession(l zerolog.Logger, sessionID, runID string) zerolog.Logger {
	ctx := l.With()
	if sessionID != "" {
		ctx = ctx.Str("session_id", sessionID)
	}
	if runID != "" {
		ctx = ctx.Str("run_id", runID)
	}
	return ctx.Logger()
}
