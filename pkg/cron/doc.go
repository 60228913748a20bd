// Package cron implements FORGE's leader-gated scheduled execution:
// a registry of named schedules, a tick loop that runs only on the
// node holding the scheduler role's leadership, and an exactly-once
// claim per scheduled instant enforced by the cron_runs table's
// unique (cron_name, scheduled_time) constraint.
//
// Schedules are parsed with robfig/cron/v3.
package cron
