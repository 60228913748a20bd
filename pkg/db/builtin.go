package db

import "embed"

//go:embed builtin_migrations/*.sql
var builtinMigrationsFS embed.FS

// builtinMigrations returns the schema migrations FORGE ships with:
// nodes, leaders, jobs, workflows, cron_runs, sessions, config, and the
// reactivity trigger helper. These always run before any user-supplied
// migration, regardless of name: Migrate applies this set first, in
// file-name order ("0000_" through "0007_"), then the user set sorted
// by Name.
func builtinMigrations() []Migration {
	all, err := loadMigrations(builtinMigrationsFS)
	if err != nil {
		// Only reachable if a builtin migration file is malformed at
		// compile time, which embed would already have caught.
		panic("db: failed to load builtin migrations: " + err.Error())
	}
	return all
}
