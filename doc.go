// Package forge wires FORGE's distributed coordination kernel into a
// single process: migration runner, node registry, leader election,
// job queue and worker pool, cron scheduler, workflow executor and
// scheduler, reactor, and the WebSocket gateway, all sharing one
// PostgreSQL connection pool.
//
// Multiple identical App processes pointed at the same database
// cooperate as a cluster purely through Postgres advisory locks,
// NOTIFY/LISTEN, and row state — no broker, cache, or scheduler
// service sits alongside it.
//
// # Quick start
//
//	pool := db.MustOpen(ctx, cfg.Database.URL, db.WithMigrations(migrations))
//
//	app, err := forge.New(pool, "",
//	    forge.WithRoles(forge.RoleWorker, forge.RoleScheduler),
//	    forge.WithJobQueueOption(jobqueue.WithTask[SendEmailPayload](sendEmailTask{})),
//	    forge.WithWorkflow("onboard_user", 1, onboardUserWorkflow),
//	    forge.WithCronJob("nightly_report", "0 2 * * *", "UTC", runNightlyReport),
//	    forge.WithQuery("list_projects", []string{"projects"}, listProjects),
//	    forge.WithShutdownHook(db.Shutdown(pool)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := app.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Dispatch and Start
//
// Outside the core's control loops, application code enqueues jobs and
// starts workflows through the App itself:
//
//	jobID, err := app.Dispatch(ctx, "send_email", SendEmailPayload{To: addr})
//	run, err := app.Start(ctx, "onboard_user", input)
//
// # Shutdown
//
// Run blocks until SIGINT/SIGTERM or Stop() is called, then stops every
// component and runs a cluster.Drainer (draining status, leadership
// release, deregistration) before returning.
package forge
