// Package id provides UUID generation for FORGE entity identifiers.
//
// Every entity in the data model (nodes, jobs, workflow runs and steps,
// cron runs, sessions) is keyed by a UUID. This package centralizes
// generation so callers never reach for crypto/rand directly.
package id

import "github.com/google/uuid"

// New generates a new random (v4) UUID as a string.
func New() string {
	return uuid.NewString()
}

// IsValid reports whether s parses as a UUID.
//
// The gateway validates job_id/workflow_id fields on inbound WebSocket
// messages with Parse, which also normalizes them.
func IsValid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// Parse validates and normalizes a UUID string.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
