package jobqueue

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Progress writes a job's progress percent/message through to its row,
// so subscribers (pkg/reactor) observe updates without waiting for
// completion.
func (q *Queue) Progress(ctx context.Context, jobID string, percent int, message string) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs SET progress_percent = $2, progress_message = $3
		WHERE id = $1
	`, jobID, percent, message)
	if err != nil {
		return wrapDBErr(err, "update progress")
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Cancel transitions a non-terminal job directly to dead_letter so the
// worker pool will not pick it up again. It does not interrupt a job
// already running on a worker; the handler must observe ctx
// cancellation on its own to stop early.
func (q *Queue) Cancel(ctx context.Context, jobID string, reason string) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs SET status = 'dead_letter', failed_at = now(), last_error = $2
		WHERE id = $1 AND status IN ('pending', 'claimed', 'running')
	`, jobID, reason)
	if err != nil {
		return wrapDBErr(err, "cancel job")
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotCancelable
	}
	return nil
}

// Get fetches a job snapshot, used by pkg/gateway's job subscription
// path and by API callers polling status out of band.
func (q *Queue) Get(ctx context.Context, jobID string) (*Job, error) {
	var j Job
	err := q.pool.QueryRow(ctx, `
		SELECT id, type, input, output, status, priority, attempts, max_attempts,
		       coalesce(last_error, ''), coalesce(required_capability, ''), coalesce(worker_id, ''),
		       coalesce(idempotency_key, ''), scheduled_at, created_at,
		       claimed_at, started_at, completed_at, failed_at, last_heartbeat,
		       progress_percent, coalesce(progress_message, '')
		FROM jobs WHERE id = $1
	`, jobID).Scan(
		&j.ID, &j.Type, &j.Input, &j.Output, &j.Status, &j.Priority, &j.Attempts, &j.MaxAttempts,
		&j.LastError, &j.RequiredCapability, &j.WorkerID,
		&j.IdempotencyKey, &j.ScheduledAt, &j.CreatedAt,
		&j.ClaimedAt, &j.StartedAt, &j.CompletedAt, &j.FailedAt, &j.LastHeartbeat,
		&j.ProgressPercent, &j.ProgressMessage,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, wrapDBErr(err, "get job %s", jobID)
	}
	return &j, nil
}
