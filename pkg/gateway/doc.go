// Package gateway implements FORGE's WebSocket wire protocol
// (spec.md §6): per-connection sessions, query/job/workflow
// subscriptions backed by pkg/reactor, and the JSON message envelopes
// client and server exchange.
//
// A Hub owns every live Session and the single goroutine that drains
// pkg/reactor.Reactor.Ready() and fans each readiness event out to the
// session(s) that asked for it, mirroring the register/unregister/
// broadcast event loop shape pkg/cron and pkg/workflow's schedulers
// already use in this tree (and the WebSocket hub pattern in the
// agenterm example this package is grounded on).
package gateway
