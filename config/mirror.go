package config

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// flatten produces the dotted key/value pairs this Config would appear
// as in the config table (e.g. "gateway.port" -> "8080"). Only
// scalar-ish leaves are mirrored; this is an observability surface, not
// a generic reflection-based serializer.
func (c *Config) flatten() map[string]string {
	return map[string]string{
		"gateway.port":                fmt.Sprint(c.Gateway.Port),
		"gateway.grpc_port":           fmt.Sprint(c.Gateway.GRPCPort),
		"gateway.max_connections":     fmt.Sprint(c.Gateway.MaxConnections),
		"database.url":                redactDSN(c.Database.URL),
		"database.migrations_path":    c.Database.MigrationsPath,
		"database.max_open_conns":     fmt.Sprint(c.Database.MaxOpenConns),
		"database.min_conns":          fmt.Sprint(c.Database.MinConns),
		"node.roles":                  fmt.Sprint(c.Node.Roles),
		"node.worker_capabilities":    fmt.Sprint(c.Node.WorkerCapabilities),
		"worker.max_concurrent_jobs":  fmt.Sprint(c.Worker.MaxConcurrentJobs),
		"worker.poll_interval_ms":     fmt.Sprint(c.Worker.PollIntervalMs),
		"function.timeout_secs":       fmt.Sprint(c.Function.TimeoutSecs),
		"observability.level":         c.Observability.Level,
		"observability.sample_rate":   fmt.Sprint(c.Observability.SampleRate),
		"observability.retention_days": fmt.Sprint(c.Observability.RetentionDays),
	}
}

// Mirror writes the effective configuration into the config table so
// that any node in the cluster can read what another node resolved its
// settings to. The file/environment remains the source of truth; this
// table is read-only from the application's perspective.
func (c *Config) Mirror(ctx context.Context, pool *pgxpool.Pool, nodeID string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("config: begin mirror tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for key, value := range c.flatten() {
		if _, err := tx.Exec(ctx, `
			INSERT INTO config (key, value, updated_at, updated_by)
			VALUES ($1, $2, now(), $3)
			ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = now(), updated_by = $3
		`, key, value, nodeID); err != nil {
			return fmt.Errorf("config: mirror key %s: %w", key, err)
		}
	}

	return tx.Commit(ctx)
}

// redactDSN hides credentials from a postgres:// URL before it is ever
// written anywhere inspectable, including the config table.
func redactDSN(dsn string) string {
	at := -1
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == '@' {
			at = i
		}
	}
	schemeEnd := -1
	for i := 0; i+2 < len(dsn); i++ {
		if dsn[i] == ':' && dsn[i+1] == '/' && dsn[i+2] == '/' {
			schemeEnd = i + 3
			break
		}
	}
	if at == -1 || schemeEnd == -1 || at <= schemeEnd {
		return dsn
	}
	return dsn[:schemeEnd] + "***@" + dsn[at+1:]
}
