package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Enqueue inserts a job of the given type, or returns the id of an
// existing non-terminal job sharing the same idempotency key
// (spec.md §4.4).
func (q *Queue) Enqueue(ctx context.Context, taskType string, payload any, opts ...EnqueueOption) (string, error) {
	cfg, input, err := q.prepareEnqueue(taskType, payload, opts)
	if err != nil {
		return "", err
	}

	if cfg.idempotencyKey == "" {
		return insertJob(ctx, q.pool, taskType, input, cfg)
	}

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return "", wrapDBErr(err, "begin enqueue tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := enqueueWithIdempotencyCheck(ctx, tx, taskType, input, cfg)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", wrapDBErr(err, "commit enqueue tx")
	}
	return id, nil
}

// EnqueueTx is Enqueue scoped to an existing transaction: the job is
// only visible once tx commits, keeping enqueue atomic with whatever
// caused it.
func (q *Queue) EnqueueTx(ctx context.Context, tx pgx.Tx, taskType string, payload any, opts ...EnqueueOption) (string, error) {
	cfg, input, err := q.prepareEnqueue(taskType, payload, opts)
	if err != nil {
		return "", err
	}
	if cfg.idempotencyKey == "" {
		return insertJob(ctx, tx, taskType, input, cfg)
	}
	return enqueueWithIdempotencyCheck(ctx, tx, taskType, input, cfg)
}

func (q *Queue) prepareEnqueue(taskType string, payload any, opts []EnqueueOption) (*enqueueConfig, []byte, error) {
	if _, ok := q.cfg.registry.get(taskType); !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskType)
	}

	input, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("jobqueue: marshal payload: %w", err)
	}

	cfg := &enqueueConfig{maxAttempts: 5}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg, input, nil
}

// rowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, so the
// insert/lookup logic is identical whether or not it runs inside an
// explicit transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// idempotencyConflictTarget matches idx_jobs_idempotency_key exactly: a
// partial unique index is the serialization primitive (same pattern as
// 0004_cron_runs.sql's UNIQUE(cron_name, scheduled_time)), so concurrent
// Enqueue calls sharing a key race at the database, not in this
// process's READ COMMITTED transaction.
const idempotencyConflictTarget = `(idempotency_key) WHERE idempotency_key IS NOT NULL AND status NOT IN ('completed', 'dead_letter')`

func enqueueWithIdempotencyCheck(ctx context.Context, q rowQuerier, taskType string, input []byte, cfg *enqueueConfig) (string, error) {
	id, err := insertJobOnConflict(ctx, q, taskType, input, cfg, "ON CONFLICT "+idempotencyConflictTarget+" DO NOTHING")
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	// The insert hit the unique index and was discarded: another
	// transaction won the race and already holds the live job for this
	// key. Read it back.
	var existing string
	if err := q.QueryRow(ctx, `
		SELECT id FROM jobs
		WHERE idempotency_key = $1 AND status NOT IN ('completed', 'dead_letter')
	`, cfg.idempotencyKey).Scan(&existing); err != nil {
		return "", wrapDBErr(err, "lookup existing idempotent job")
	}
	return existing, nil
}

func insertJob(ctx context.Context, q rowQuerier, taskType string, input []byte, cfg *enqueueConfig) (string, error) {
	return insertJobOnConflict(ctx, q, taskType, input, cfg, "")
}

// insertJobOnConflict inserts a job, optionally appending an ON CONFLICT
// clause. When that clause is DO NOTHING and the conflict fires, RETURNING
// produces no row; this is reported as ("", nil) rather than an error, so
// the caller can fall back to reading the existing row.
func insertJobOnConflict(ctx context.Context, q rowQuerier, taskType string, input []byte, cfg *enqueueConfig, onConflict string) (string, error) {
	scheduledAtClause := "now()"
	args := []any{taskType, input, cfg.priority, cfg.maxAttempts, nullIfEmpty(cfg.requiredCapability), nullIfEmpty(cfg.idempotencyKey)}
	if cfg.scheduledAt != nil {
		scheduledAtClause = "$7"
		args = append(args, *cfg.scheduledAt)
	}

	var id string
	err := q.QueryRow(ctx, `
		INSERT INTO jobs (type, input, priority, max_attempts, required_capability, idempotency_key, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, `+scheduledAtClause+`)
		`+onConflict+`
		RETURNING id
	`, args...).Scan(&id)
	if err != nil {
		if onConflict != "" && err == pgx.ErrNoRows {
			return "", nil
		}
		return "", wrapDBErr(err, "insert job")
	}
	return id, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
