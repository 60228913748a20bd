// Package reactor implements FORGE's reactive query layer (spec.md
// §4.8): a LISTEN/NOTIFY-driven change feed that invalidates
// subscriptions whose read set intersects a changed table or row, so
// pkg/gateway can push fresh data to subscribed WebSocket clients
// without polling.
//
// A Reactor owns three collaborators:
//
//   - Listener: a dedicated connection running LISTEN on the
//     forge_changes channel (installed by migration 0007), parsing
//     each NOTIFY payload into a Change and reconnecting with a resync
//     event on connection loss so subscribers know their view may be
//     stale.
//   - Registry: tracks live subscriptions (query, job, or workflow) per
//     session, each carrying a ReadSet recorded from its last
//     execution.
//   - Invalidator: matches incoming Changes against the registry's
//     subscriptions, then debounces and coalesces them per affected
//     subscription, so a burst of writes to one table produces one
//     invalidation, not one per row.
//
// Table/row tracking granularity is adaptive (AdaptiveTracker): a
// table with few subscriptions is tracked at row level for precision,
// a table with many subscriptions falls back to table level to bound
// memory, with hysteresis between the two thresholds so a table
// doesn't flap modes on every subscribe/unsubscribe.
package reactor
