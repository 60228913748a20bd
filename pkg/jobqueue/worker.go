package jobqueue

import (
	"context"
	"log/slog"
	"time"
)

// pollLoop repeatedly claims and dispatches jobs, bounded by
// cfg.concurrency in-flight at a time.
func (q *Queue) pollLoop(ctx context.Context) {
	ticker := q.cfg.clock.NewTicker(q.cfg.pollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, q.cfg.concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			q.dispatchBatch(ctx, sem)
		}
	}
}

func (q *Queue) dispatchBatch(ctx context.Context, sem chan struct{}) {
	limit := cap(sem) - len(sem)
	if limit <= 0 {
		return
	}

	jobs, err := q.claim(ctx, q.nodeID, q.cfg.registry.names(), limit)
	if err != nil {
		q.log.ErrorContext(ctx, "claim failed", slog.Any("error", err))
		return
	}

	for _, j := range jobs {
		sem <- struct{}{}
		q.wg.Add(1)
		go func(j claimedJob) {
			defer q.wg.Done()
			defer func() { <-sem }()
			q.execute(ctx, j)
		}(j)
	}
}

// execute runs a single claimed job's handler with a timeout and
// heartbeat, then transitions it to completed, retried, or dead_letter.
func (q *Queue) execute(ctx context.Context, j claimedJob) {
	executor, ok := q.cfg.registry.get(j.Type)
	if !ok {
		q.fail(ctx, j, ErrUnknownTask)
		return
	}

	if err := q.markRunning(ctx, j.ID); err != nil {
		q.log.ErrorContext(ctx, "mark running failed", slog.String("job_id", j.ID), slog.Any("error", err))
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go q.heartbeatLoop(hbCtx, j.ID)
	defer stopHeartbeat()

	execCtx, cancel := context.WithTimeout(ctx, q.cfg.jobTimeout)
	defer cancel()

	err := executor.Execute(execCtx, j.Input)
	if err != nil {
		q.log.ErrorContext(ctx, "job failed", slog.String("job_id", j.ID), slog.String("type", j.Type), slog.Any("error", err))
		q.fail(ctx, j, err)
		return
	}

	q.log.DebugContext(ctx, "job completed", slog.String("job_id", j.ID), slog.String("type", j.Type))
	if err := q.complete(ctx, j.ID); err != nil {
		q.log.ErrorContext(ctx, "mark completed failed", slog.String("job_id", j.ID), slog.Any("error", err))
	}
}

func (q *Queue) heartbeatLoop(ctx context.Context, jobID string) {
	ticker := q.cfg.clock.NewTicker(q.cfg.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := q.heartbeat(ctx, jobID); err != nil {
				q.log.Warn("heartbeat failed", slog.String("job_id", jobID), slog.Any("error", err))
			}
		}
	}
}

func (q *Queue) fail(ctx context.Context, j claimedJob, cause error) {
	if j.Attempts < j.MaxAttempts {
		delay := q.cfg.backoff.Next(j.Attempts)
		if err := q.retry(ctx, j.ID, cause, delay); err != nil {
			q.log.ErrorContext(ctx, "retry transition failed", slog.String("job_id", j.ID), slog.Any("error", err))
		}
		return
	}
	if err := q.deadLetter(ctx, j.ID, cause); err != nil {
		q.log.ErrorContext(ctx, "dead-letter transition failed", slog.String("job_id", j.ID), slog.Any("error", err))
	}
}

func (q *Queue) markRunning(ctx context.Context, jobID string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE jobs SET status = 'running', started_at = now(), last_heartbeat = now()
		WHERE id = $1
	`, jobID)
	return wrapDBErr(err, "mark job running")
}

func (q *Queue) heartbeat(ctx context.Context, jobID string) error {
	_, err := q.pool.Exec(ctx, `UPDATE jobs SET last_heartbeat = now() WHERE id = $1`, jobID)
	return wrapDBErr(err, "heartbeat job")
}

func (q *Queue) complete(ctx context.Context, jobID string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE jobs SET status = 'completed', completed_at = now() WHERE id = $1
	`, jobID)
	return wrapDBErr(err, "complete job")
}

func (q *Queue) retry(ctx context.Context, jobID string, cause error, delay time.Duration) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending', scheduled_at = now() + ($2 * interval '1 second'), last_error = $3, worker_id = NULL, claimed_at = NULL
		WHERE id = $1
	`, jobID, delay.Seconds(), cause.Error())
	return wrapDBErr(err, "retry job")
}

func (q *Queue) deadLetter(ctx context.Context, jobID string, cause error) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE jobs SET status = 'dead_letter', failed_at = now(), last_error = $2
		WHERE id = $1
	`, jobID, cause.Error())
	return wrapDBErr(err, "dead-letter job")
}
