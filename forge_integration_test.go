//go:build integration

package forge

import (
	"context"
	"net/http"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/forge/pkg/db"
)

// Requires a live Postgres reachable at DATABASE_URL with the builtin
// migrations already applied. Run with:
//
//	go test -tags=integration .
func newIntegrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	pool, err := db.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// TestApp_RunAndStop exercises the full wiring: New constructs every
// component against a real pool, Run blocks until Stop is called, and
// every registered shutdown hook runs on the way out.
func TestApp_RunAndStop(t *testing.T) {
	pool := newIntegrationPool(t)

	var hookCalled atomic.Bool
	app, err := New(pool, "integration-test-node",
		WithAddress(":0"),
		WithShutdownTimeout(5*time.Second),
		WithShutdownHook(func(context.Context) error {
			hookCalled.Store(true)
			return nil
		}),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run() }()

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, app.Stop())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for Run to return")
	}

	require.True(t, hookCalled.Load())
}

// TestApp_HealthRoutes checks the liveness/readiness routes mounted on
// App.Router() respond once the node is running.
func TestApp_HealthRoutes(t *testing.T) {
	pool := newIntegrationPool(t)

	app, err := New(pool, "integration-test-node-health", WithAddress("127.0.0.1:18099"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run() }()
	t.Cleanup(func() {
		_ = app.Stop()
		<-done
	})

	time.Sleep(200 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:18099/health/live")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
