// Package jobqueue implements FORGE's job queue and worker pool: a
// Postgres-backed work queue with exactly-once claiming via
// FOR UPDATE SKIP LOCKED, idempotent enqueue, heartbeats, retry
// backoff, and dead-lettering.
//
// # Task Definition
//
// Tasks are defined as structs with Name() and Handle() methods, the
// same structural-typing registration used across FORGE's scheduled
// components:
//
//	type SendWelcome struct{ mailer Mailer }
//
//	func (t *SendWelcome) Name() string { return "send_welcome" }
//	func (t *SendWelcome) Handle(ctx context.Context, p SendWelcomePayload) error {
//	    return t.mailer.Send(ctx, p.Email)
//	}
//
//	q, err := jobqueue.New(pool, nodeID,
//	    jobqueue.WithTask[SendWelcomePayload](&SendWelcome{mailer: m}),
//	)
//
// # Enqueueing
//
//	jobID, err := q.Enqueue(ctx, "send_welcome", SendWelcomePayload{Email: "a@b.com"},
//	    jobqueue.Priority(5),
//	    jobqueue.IdempotencyKey("welcome:"+userID),
//	)
package jobqueue
