package jobqueue

import "context"

// staleRecoveryLoop periodically returns jobs stuck in claimed/running
// past staleThreshold back to pending, preserving attempts. This is
// the recovery path for a worker that died mid-job (spec.md §4.4).
func (q *Queue) staleRecoveryLoop(ctx context.Context) {
	ticker := q.cfg.clock.NewTicker(q.cfg.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n, err := q.recoverStale(ctx); err != nil {
				q.log.Error("stale recovery failed", "error", err)
			} else if n > 0 {
				q.log.Info("recovered stale jobs", "count", n)
			}
		}
	}
}

func (q *Queue) recoverStale(ctx context.Context) (int64, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending', worker_id = NULL, claimed_at = NULL
		WHERE status IN ('claimed', 'running')
		  AND claimed_at < now() - ($1 * interval '1 second')
	`, q.cfg.staleThreshold.Seconds())
	if err != nil {
		return 0, wrapDBErr(err, "recover stale jobs")
	}
	return tag.RowsAffected(), nil
}
