package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockID is the fixed, process-global advisory lock key used to
// serialize migrations across every node in the cluster. Any node that
// calls Migrate blocks on this lock until the node currently applying
// migrations releases it, which happens on every exit path including
// panics, since the lock lives on the session and is released in a
// deferred pg_advisory_unlock.
const migrationLockID int64 = 7_726_511_001

const migrationsTable = "migrations"

// Migration is a single named unit of schema change. Name fixes
// ordering: migrations apply in lexicographic order by Name, which is
// why built-in migrations are prefixed "0000_", "0001_", ... and user
// migration files are expected to follow the same
// "NNNN_description.sql" convention (spec.md §6).
type Migration struct {
	Name string
	SQL  string
}

// Migrate applies built-in migrations followed by user-supplied ones,
// skipping any whose name is already recorded in the migrations table.
// It acquires migrationLockID for the duration of the run so that only
// one node across the cluster migrates at a time: every other node
// calling Migrate concurrently blocks on the advisory lock, then finds
// there is nothing left to apply once it acquires it.
func Migrate(ctx context.Context, pool *pgxpool.Pool, userMigrations embed.FS, log *slog.Logger) error {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return errors.Join(ErrFailedToOpenDBConnection, err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return errors.Join(ErrApplyMigrations, err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Error("failed to release migration lock", slog.Any("error", err))
		}
	}()

	if _, err := conn.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, migrationsTable)); err != nil {
		return errors.Join(ErrApplyMigrations, err)
	}

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return errors.Join(ErrApplyMigrations, err)
	}

	all, err := loadMigrations(userMigrations)
	if err != nil {
		return errors.Join(ErrApplyMigrations, err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	all = append(builtinMigrations(), all...)

	for _, m := range all {
		if applied[m.Name] {
			continue
		}
		if err := applyMigration(ctx, conn, m); err != nil {
			return errors.Join(ErrApplyMigrations, fmt.Errorf("migration %s: %w", m.Name, err))
		}
		log.Info("applied migration", slog.String("name", m.Name))
	}

	return nil
}

func appliedMigrations(ctx context.Context, conn *pgxpool.Conn) (map[string]bool, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf("SELECT name FROM %s", migrationsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// applyMigration runs every statement of m in its own Exec, then
// records the migration name, all inside one transaction so a crash
// mid-migration never leaves a partially-applied migration marked
// done.
func applyMigration(ctx context.Context, conn *pgxpool.Conn, m Migration) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range splitStatements(m.SQL) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("statement %q: %w", truncate(stmt, 80), err)
		}
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (name) VALUES ($1)", migrationsTable), m.Name); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// loadMigrations reads all *.sql files from the embedded filesystem,
// treating the whole file content as one Migration keyed by file name.
func loadMigrations(fsys embed.FS) ([]Migration, error) {
	var out []Migration
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		b, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		name := path[strings.LastIndex(path, "/")+1:]
		out = append(out, Migration{Name: name, SQL: string(b)})
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return out, nil
}

// splitStatements splits SQL text into individual statements on ';',
// except inside dollar-quoted strings ($tag$ ... $tag$), where
// semicolons are literal content, not separators. A stack of open tags
// lets a function body that itself contains a differently-tagged
// dollar-quoted string close correctly.
func splitStatements(sql string) []string {
	var (
		statements []string
		stmt       strings.Builder
		tagStack   []string
	)

	i := 0
	for i < len(sql) {
		if tag, consumed, ok := matchDollarTag(sql[i:]); ok {
			if len(tagStack) > 0 && tagStack[len(tagStack)-1] == tag {
				tagStack = tagStack[:len(tagStack)-1]
			} else {
				tagStack = append(tagStack, tag)
			}
			stmt.WriteString(sql[i : i+consumed])
			i += consumed
			continue
		}

		c := sql[i]
		if c == ';' && len(tagStack) == 0 {
			if s := strings.TrimSpace(stmt.String()); s != "" {
				statements = append(statements, s)
			}
			stmt.Reset()
			i++
			continue
		}

		stmt.WriteByte(c)
		i++
	}

	if s := strings.TrimSpace(stmt.String()); s != "" {
		statements = append(statements, s)
	}

	return statements
}

// matchDollarTag matches a dollar-quote delimiter ($tag$) at the start
// of s, where tag is alphanumeric/underscore and may be empty ($$).
// Returns the tag and the number of bytes the delimiter occupies.
func matchDollarTag(s string) (tag string, consumed int, ok bool) {
	if len(s) == 0 || s[0] != '$' {
		return "", 0, false
	}
	for j := 1; j < len(s); j++ {
		if s[j] == '$' {
			tag = s[1:j]
			for _, r := range tag {
				if !isTagRune(r) {
					return "", 0, false
				}
			}
			return tag, j + 1, true
		}
		if !isTagRune(rune(s[j])) {
			return "", 0, false
		}
	}
	return "", 0, false
}

func isTagRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
