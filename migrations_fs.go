package integrations

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
)

// migrationsFS holds the postgres schema under data/sql/migrations and the
// sqlite alternative under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the full embedded migration tree.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}

// DialectMigrationsFS returns the migration directory for a database
// driver name.
func DialectMigrationsFS(driver string) (fs.FS, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "postgres", "postgresql", "pgx":
		return fs.Sub(migrationsFS, "data/sql/migrations")
	case "", "sqlite", "sqlite3":
		return fs.Sub(migrationsFS, "data/sql/migrations/sqlite")
	default:
		return nil, fmt.Errorf("integrations: no migrations for driver %q", driver)
	}
}
