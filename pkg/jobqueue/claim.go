package jobqueue

import (
	"context"
	"encoding/json"
)

// claimedJob is the subset of job fields the worker pool needs to
// dispatch and complete a claim.
type claimedJob struct {
	ID          string
	Type        string
	Input       json.RawMessage
	Attempts    int
	MaxAttempts int
}

// claim selects up to limit pending, due jobs matching capabilities
// and atomically moves them to claimed, bumping attempts. The
// FOR UPDATE SKIP LOCKED + single-statement UPDATE...RETURNING is the
// exactly-once primitive: two workers racing this query never receive
// the same row (spec.md §4.4).
func (q *Queue) claim(ctx context.Context, workerID string, capabilities []string, limit int) ([]claimedJob, error) {
	rows, err := q.pool.Query(ctx, `
		WITH candidates AS (
			SELECT id FROM jobs
			WHERE status = 'pending'
			  AND scheduled_at <= now()
			  AND (required_capability IS NULL OR required_capability = ANY($1::text[]))
			ORDER BY priority DESC, scheduled_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		UPDATE jobs
		SET status = 'claimed', worker_id = $3, claimed_at = now(), attempts = attempts + 1
		FROM candidates
		WHERE jobs.id = candidates.id
		RETURNING jobs.id, jobs.type, jobs.input, jobs.attempts, jobs.max_attempts
	`, capabilities, limit, workerID)
	if err != nil {
		return nil, wrapDBErr(err, "claim jobs")
	}
	defer rows.Close()

	var claimed []claimedJob
	for rows.Next() {
		var j claimedJob
		if err := rows.Scan(&j.ID, &j.Type, &j.Input, &j.Attempts, &j.MaxAttempts); err != nil {
			return nil, wrapDBErr(err, "scan claimed job")
		}
		claimed = append(claimed, j)
	}
	return claimed, wrapDBErr(rows.Err(), "claim jobs")
}
