package workflow

import (
	"io"
	"log/slog"

	"github.com/jonboulle/clockwork"
)

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger. Defaults to a discard logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// WithClock injects the clock used for step timestamps and sleep/event
// deadlines, primarily for deterministic tests.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Executor) { e.clock = clock }
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
