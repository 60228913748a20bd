package jobqueue

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

type config struct {
	registry        *taskRegistry
	logger          *slog.Logger
	clock           clockwork.Clock
	backoff         Backoff
	pollInterval    time.Duration
	cleanupInterval time.Duration
	staleThreshold  time.Duration
	concurrency     int
	heartbeatEvery  time.Duration
	jobTimeout      time.Duration
}

func newConfig() *config {
	return &config{
		registry:        newTaskRegistry(),
		clock:           clockwork.NewRealClock(),
		backoff:         DefaultBackoff(),
		pollInterval:    500 * time.Millisecond,
		cleanupInterval: 30 * time.Second,
		staleThreshold:  5 * time.Minute,
		concurrency:     10,
		heartbeatEvery:  10 * time.Second,
		jobTimeout:      time.Minute,
	}
}

// Option configures a Queue.
type Option func(*config)

// WithTask registers a task handler using structural typing: T must
// implement Name() and Handle(ctx, P) error. The payload type P appears
// only in T's constraint, so Go cannot infer it; callers name it:
// WithTask[MyPayload](task).
func WithTask[P any, T interface {
	Name() string
	Handle(context.Context, P) error
}](task T) Option {
	return func(c *config) {
		c.registry.register(task.Name(), newTaskWrapper[P, T](task))
	}
}

// WithLogger sets the logger used for queue lifecycle and per-job
// events. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the clock that drives the poll, stale-recovery and
// heartbeat tickers. Retry delays and the stale cutoff are measured
// against the database's now(), not this clock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithBackoff overrides the default retry backoff curve.
func WithBackoff(b Backoff) Option {
	return func(c *config) { c.backoff = b }
}

// WithPollInterval sets how often the worker pool polls for claimable
// jobs. Defaults to 500ms.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithCleanupInterval sets how often the stale-job recovery sweep
// runs. Defaults to 30s.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.cleanupInterval = d
		}
	}
}

// WithStaleThreshold sets how long a job may sit in claimed/running
// before the recovery sweep returns it to pending. Defaults to 5m.
func WithStaleThreshold(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.staleThreshold = d
		}
	}
}

// WithConcurrency bounds how many jobs a single worker pool processes
// at once. Defaults to 10.
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithHeartbeatInterval sets how often a running job's last_heartbeat
// is refreshed. Defaults to 10s.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.heartbeatEvery = d
		}
	}
}

// WithJobTimeout bounds how long a single handler invocation may run
// before it is treated as a failure. Defaults to 1m.
func WithJobTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.jobTimeout = d
		}
	}
}
