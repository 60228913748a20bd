// Command forge-node runs a single FORGE node: a migrated PostgreSQL
// pool, a worker serving one demo job task, a leader-elected cron
// sweep, an onboarding workflow, and a reactive query exposed over the
// WebSocket gateway. It exists to exercise every module end to end,
// not as a template to deploy verbatim.
package main

import (
	"context"
	"embed"
	"fmt"
	"os"

	"github.com/dmitrymomot/forge"
	"github.com/dmitrymomot/forge/config"
	"github.com/dmitrymomot/forge/pkg/db"
	"github.com/dmitrymomot/forge/pkg/jobqueue"
	"github.com/dmitrymomot/forge/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

func main() {
	log := logger.New()
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	pool := db.MustOpen(ctx, cfg.Database.URL,
		db.WithMigrations(migrations),
		db.WithLogger(log),
		db.WithMaxConns(cfg.Database.MaxOpenConns),
		db.WithMinConns(cfg.Database.MinConns),
	)

	app, err := forge.New(pool, "",
		forge.WithLogger(log),
		forge.WithAddress(fmt.Sprintf(":%d", cfg.Gateway.Port)),
		forge.WithRoles(cfg.Node.Roles...),
		forge.WithCapabilities(cfg.Node.WorkerCapabilities...),

		forge.WithJobQueueOption(jobqueue.WithTask[SendWelcomeEmailPayload](sendWelcomeEmailTask{pool: pool})),
		forge.WithWorkflow("onboard_user", 1, newOnboardUserWorkflow(pool)),
		forge.WithCronJob("demo_sweep", "0 * * * *", "UTC", newDemoSweepHandler(pool)),
		forge.WithQuery("list_demo_events", []string{"demo_events"}, newListDemoEventsQuery(pool)),

		forge.WithHealthCheck("postgres", func(ctx context.Context) error {
			return pool.Ping(ctx)
		}),

		forge.WithShutdownHook(db.Shutdown(pool)),
	)
	if err != nil {
		log.Error("failed to build app", "error", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		log.Error("application error", "error", err)
		os.Exit(1)
	}
}
