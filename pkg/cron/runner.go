package cron

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/forge/pkg/ferrors"
	"github.com/dmitrymomot/forge/pkg/id"
)

// Leadership reports whether this node currently holds the scheduler
// role's leadership (spec.md §4.5: "only when this node is the
// scheduler leader"). *cluster.Elector satisfies this.
type Leadership interface {
	IsLeader() bool
}

// Runner is FORGE's leader-gated cron scheduler: a registry of named
// schedules, ticked every pollInterval, that claims each due instant
// via the cron_runs table's unique (cron_name, scheduled_time)
// constraint before executing it.
type Runner struct {
	pool   *pgxpool.Pool
	leader Leadership
	nodeID string
	log    *slog.Logger
	clock  clockwork.Clock

	pollInterval time.Duration

	reg *registry

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock overrides the clock driving the tick loop, so tests can
// advance time deterministically instead of racing wall-clock sleeps.
func WithClock(c clockwork.Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithPollInterval sets how often the tick loop checks for due crons.
// Defaults to 1s (spec.md §4.5).
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// NewRunner builds a cron runner gated by leader. leader.IsLeader() is
// checked at the top of every tick; when false the tick is a no-op, so
// every node in the cluster can run a Runner and only the scheduler
// leader actually executes anything.
func NewRunner(pool *pgxpool.Pool, leader Leadership, nodeID string, opts ...Option) (*Runner, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}
	r := &Runner{
		pool:         pool,
		leader:       leader,
		nodeID:       nodeID,
		clock:        clockwork.NewRealClock(),
		pollInterval: time.Second,
		reg:          newRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r, nil
}

// RegisterOption configures a single Register call.
type RegisterOption func(*entry)

// WithTimeout bounds a single cron invocation. Defaults to 1 minute.
func WithTimeout(d time.Duration) RegisterOption {
	return func(e *entry) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithCatchUp enables bounded catch-up for missed instants (spec.md
// §4.5), up to limit runs per tick.
func WithCatchUp(limit int) RegisterOption {
	return func(e *entry) {
		e.catchUp = true
		if limit > 0 {
			e.catchUpLimit = limit
		}
	}
}

// Register adds a named cron to the runner. expr is a standard
// five-field cron expression; timezone is an IANA zone name (empty
// means UTC).
func (r *Runner) Register(name, expr, timezone string, handler Handler, opts ...RegisterOption) error {
	sched, err := ParseSchedule(expr, timezone)
	if err != nil {
		return ferrors.Validation("invalid cron expression %q: %v", expr, err)
	}
	e := &entry{
		name:         name,
		schedule:     sched,
		timezone:     timezone,
		handler:      handler,
		timeout:      time.Minute,
		catchUpLimit: 100,
	}
	for _, opt := range opts {
		opt(e)
	}
	return r.reg.add(e)
}

// Run drives the tick loop until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.started = true
	r.mu.Unlock()

	ticker := r.clock.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			return nil
		case <-ticker.Chan():
			if r.leader == nil || r.leader.IsLeader() {
				r.tick(runCtx)
			}
		}
	}
}

// Stop cancels the tick loop.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	r.started = false
}

func (r *Runner) tick(ctx context.Context) {
	now := r.clock.Now()
	for _, e := range r.reg.list() {
		// The first instant that fell due since the previous tick.
		next := e.schedule.NextAfter(now.Add(-r.pollInterval))
		if !next.After(now) {
			if claimed, err := r.tryClaim(ctx, e.name, next, e.timezone); err != nil {
				r.log.ErrorContext(ctx, "cron claim failed", slog.String("cron", e.name), slog.Any("error", err))
			} else if claimed {
				r.execute(ctx, e, next, false)
			}
		}

		if e.catchUp {
			r.catchUp(ctx, e, now)
		}
	}
}

// tryClaim attempts the exactly-once insert for one scheduled instant.
// A Conflict (unique-constraint race) means another node already owns
// this instant and is silently suppressed, per spec.md §7.
func (r *Runner) tryClaim(ctx context.Context, cronName string, scheduledTime time.Time, timezone string) (bool, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO cron_runs (id, cron_name, scheduled_time, timezone, status, node_id, started_at)
		VALUES ($1, $2, $3, $4, 'running', $5, now())
		ON CONFLICT (cron_name, scheduled_time) DO NOTHING
	`, id.New(), cronName, scheduledTime, timezone, r.nodeID)
	if err != nil {
		return false, ferrors.DatabaseFailure(err, "claim cron %s@%s", cronName, scheduledTime)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Runner) execute(ctx context.Context, e *entry, scheduledTime time.Time, isCatchUp bool) {
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	r.log.InfoContext(ctx, "executing cron", slog.String("cron", e.name), slog.Time("scheduled_time", scheduledTime), slog.Bool("catch_up", isCatchUp))

	err := e.handler(execCtx, scheduledTime, isCatchUp)
	if err != nil {
		r.log.ErrorContext(ctx, "cron failed", slog.String("cron", e.name), slog.Any("error", err))
		r.markFailed(ctx, e.name, scheduledTime, err)
		return
	}
	r.markCompleted(ctx, e.name, scheduledTime)
}

func (r *Runner) markCompleted(ctx context.Context, cronName string, scheduledTime time.Time) {
	_, err := r.pool.Exec(ctx, `
		UPDATE cron_runs SET status = 'completed', completed_at = now()
		WHERE cron_name = $1 AND scheduled_time = $2
	`, cronName, scheduledTime)
	if err != nil {
		r.log.ErrorContext(ctx, "mark cron completed failed", slog.String("cron", cronName), slog.Any("error", err))
	}
}

func (r *Runner) markFailed(ctx context.Context, cronName string, scheduledTime time.Time, cause error) {
	_, err := r.pool.Exec(ctx, `
		UPDATE cron_runs SET status = 'failed', completed_at = now(), error = $3
		WHERE cron_name = $1 AND scheduled_time = $2
	`, cronName, scheduledTime, cause.Error())
	if err != nil {
		r.log.ErrorContext(ctx, "mark cron failed failed", slog.String("cron", cronName), slog.Any("error", err))
	}
}

// catchUp computes every missed instant since the last completed run
// (or, absent one, since 24h ago) and claims+executes each in order,
// bounded by e.catchUpLimit (spec.md §4.5).
func (r *Runner) catchUp(ctx context.Context, e *entry, now time.Time) {
	start, err := r.lastCompleted(ctx, e.name)
	if err != nil {
		r.log.ErrorContext(ctx, "catch-up: lookup last run failed", slog.String("cron", e.name), slog.Any("error", err))
		return
	}
	if start.IsZero() {
		start = now.Add(-24 * time.Hour)
	}

	missed := e.schedule.Between(start, now, e.catchUpLimit)
	for _, scheduled := range missed {
		claimed, err := r.tryClaim(ctx, e.name, scheduled, e.timezone)
		if err != nil {
			r.log.ErrorContext(ctx, "catch-up claim failed", slog.String("cron", e.name), slog.Any("error", err))
			continue
		}
		if claimed {
			r.execute(ctx, e, scheduled, true)
		}
	}
}

func (r *Runner) lastCompleted(ctx context.Context, cronName string) (time.Time, error) {
	var t time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT scheduled_time FROM cron_runs
		WHERE cron_name = $1 AND status = 'completed'
		ORDER BY scheduled_time DESC LIMIT 1
	`, cronName).Scan(&t)
	if err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, ferrors.DatabaseFailure(err, "last completed run for %s", cronName)
	}
	return t, nil
}
