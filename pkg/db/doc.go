// Package db provides PostgreSQL database utilities optimized for SaaS applications.
//
// This package wraps [github.com/jackc/pgx/v5/pgxpool] to provide connection pooling,
// transactions, and database migrations with sensible defaults for production workloads.
//
// # Features
//
//   - Connection pooling with configurable limits and timeouts
//   - Startup retry whose wait grows linearly (interval, 2×interval, ...)
//   - Migrations serialized across nodes by a Postgres advisory lock:
//     FORGE's built-in schema first, then user migrations in name order
//   - Functional-option configuration
//
// # Configuration
//
// Settings are passed to [Open] as functional options; the package reads
// no environment variables itself. Defaults:
//
//	WithMaxConns          - maximum open connections (default: 10)
//	WithMinConns          - minimum open connections (default: 5)
//	WithHealthCheckPeriod - health check interval (default: 1m)
//	WithMaxConnIdleTime   - maximum connection idle time (default: 10m)
//	WithMaxConnLifetime   - maximum connection lifetime (default: 30m)
//	WithRetry             - retry attempts and base interval (default: 3, 5s)
//	WithMigrations        - embedded migrations to apply on Open (default: none)
//
// # Usage
//
// Basic connection setup with functional options:
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		"github.com/dmitrymomot/forge/pkg/db"
//	)
//
//	func main() {
//		ctx := context.Background()
//
//		pool, err := db.Open(ctx, os.Getenv("DATABASE_CONN_URL"),
//			db.WithMaxConns(10),
//			db.WithMinConns(5),
//		)
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer pool.Close()
//	}
//
// # Health Checks
//
// The package has no health-check helper of its own; a check pings the
// pool directly:
//
//	import (
//		"net/http"
//
//		"github.com/jackc/pgx/v5/pgxpool"
//	)
//
//	func healthHandler(pool *pgxpool.Pool) http.HandlerFunc {
//		return func(w http.ResponseWriter, r *http.Request) {
//			if err := pool.Ping(r.Context()); err != nil {
//				w.WriteHeader(http.StatusServiceUnavailable)
//				return
//			}
//			w.WriteHeader(http.StatusOK)
//		}
//	}
//
// # Transactions
//
// The [WithTx] helper provides automatic transaction management with rollback on error:
//
//	import (
//		"context"
//
//		"github.com/dmitrymomot/forge/pkg/db"
//	)
//
//	err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
//		// Execute queries using tx
//		return tx.QueryRow(ctx, "SELECT 1").Scan(&result)
//	})
//	if err != nil {
//		// Transaction was rolled back automatically
//	}
//
// # Migrations
//
// Run database migrations using embedded SQL files. [Migrate] applies
// FORGE's built-in migrations, then the given ones in name order, and
// records each applied name in the migrations table; [Open] calls it
// when [WithMigrations] is set:
//
//	import (
//		"context"
//		"embed"
//		"log/slog"
//
//		"github.com/dmitrymomot/forge/pkg/db"
//	)
//
//	//go:embed migrations/*.sql
//	var migrations embed.FS
//
//	err := db.Migrate(ctx, pool, migrations, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Error Handling
//
// The package defines sentinel errors for common failure modes:
//
//   - [ErrFailedToParseDBConfig] - Invalid connection string format
//   - [ErrFailedToOpenDBConnection] - Connection failed after all retries
//   - [ErrApplyMigrations] - Migration execution failed
//   - [ErrHealthcheckFailed] - Declared for database health checks; no
//     function in this package returns it
//
// Errors are wrapped using [errors.Join] to preserve the original error context.
package db
