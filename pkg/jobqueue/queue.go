package jobqueue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/forge/pkg/ferrors"
)

// Queue is a Postgres-backed job queue and worker pool.
type Queue struct {
	pool   *pgxpool.Pool
	cfg    *config
	log    *slog.Logger
	nodeID string

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a queue bound to pool. nodeID identifies this process
// when claiming jobs (worker_id column) so stale-claim recovery and
// observability can attribute work to a node.
func New(pool *pgxpool.Pool, nodeID string, opts ...Option) (*Queue, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}

	cfg := newConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Queue{pool: pool, cfg: cfg, log: cfg.logger, nodeID: nodeID}, nil
}

// Run starts the worker pool, poll loop and stale-job recovery sweep.
// It blocks until ctx is canceled or Stop is called.
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.started = true
	q.mu.Unlock()

	q.wg.Add(2)
	go func() { defer q.wg.Done(); q.pollLoop(runCtx) }()
	go func() { defer q.wg.Done(); q.staleRecoveryLoop(runCtx) }()

	q.log.Info("jobqueue started", slog.Int("concurrency", q.cfg.concurrency), slog.Int("tasks", len(q.cfg.registry.names())))

	<-runCtx.Done()
	q.wg.Wait()
	return nil
}

// Stop signals the worker pool to exit after finishing the current
// poll iteration's in-flight jobs. It does not wait for Run to return.
func (q *Queue) Stop() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return ErrNotStarted
	}
	q.cancel()
	q.started = false
	return nil
}

// wrapDBErr classifies a raw pgx error into the ferrors taxonomy so
// callers can branch on Kind rather than driver-specific sentinels.
func wrapDBErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ferrors.Timeout(err, format, args...)
	}
	return ferrors.DatabaseFailure(err, format, args...)
}
