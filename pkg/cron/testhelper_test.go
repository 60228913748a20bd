package cron

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// fakePool returns a non-nil pool sufficient for tests that only need
// NewRunner's nil-check to pass; none of these tests execute a query.
func fakePool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	return &pgxpool.Pool{}
}
