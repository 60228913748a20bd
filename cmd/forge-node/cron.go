package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/forge/pkg/cron"
)

// newDemoSweepHandler returns a cron.Handler that prunes demo events
// older than 24 hours. Only the elected leader for the "scheduler"
// role ever runs this, so the DELETE never races across nodes.
func newDemoSweepHandler(pool *pgxpool.Pool) cron.Handler {
	return func(ctx context.Context, scheduledTime time.Time, isCatchUp bool) error {
		_, err := pool.Exec(ctx, `DELETE FROM demo_events WHERE created_at < $1`, scheduledTime.Add(-24*time.Hour))
		return err
	}
}
