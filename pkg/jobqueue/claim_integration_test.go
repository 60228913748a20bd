//go:build integration

package jobqueue

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// Requires a live Postgres reachable at DATABASE_URL with the builtin
// migrations already applied. Run with:
//
//	go test -tags=integration ./pkg/jobqueue/...
func newIntegrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

type noopPayload struct{}

type noopTask struct{}

func (noopTask) Name() string                          { return "noop" }
func (noopTask) Handle(context.Context, noopPayload) error { return nil }

// TestClaim_ExactlyOnce exercises the property from spec.md §8.1:
// across any number of concurrent claimers and any batch size, the
// union of claimed job ids is a set of distinct ids.
func TestClaim_ExactlyOnce(t *testing.T) {
	pool := newIntegrationPool(t)
	ctx := context.Background()

	q, err := New(pool, "test-node", WithTask[noopPayload](noopTask{}))
	require.NoError(t, err)

	const jobCount = 200
	for i := 0; i < jobCount; i++ {
		_, err := q.Enqueue(ctx, "noop", noopPayload{})
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		dup  int
	)

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			for {
				jobs, err := q.claim(ctx, workerID, []string{"noop"}, 5)
				require.NoError(t, err)
				if len(jobs) == 0 {
					return
				}
				mu.Lock()
				for _, j := range jobs {
					if seen[j.ID] {
						dup++
					}
					seen[j.ID] = true
				}
				mu.Unlock()
			}
		}(workerIDFor(w))
	}
	wg.Wait()

	require.Zero(t, dup, "no job id should be claimed twice")
	require.Len(t, seen, jobCount)
}

func workerIDFor(i int) string {
	return "worker-" + string(rune('a'+i))
}
