// Package cluster implements FORGE's node registry and leader election:
// the two primitives every other component (cron, workflow scheduler,
// stale recovery) builds on to know which node is alive and which one
// is allowed to do leader-gated work.
//
// Leadership uses a Postgres advisory lock for liveness (a dead
// session releases the lock automatically) plus a lease row in the
// leaders table for visibility: other nodes can see who currently
// holds a role without taking the lock themselves.
package cluster
