package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-integrations/core"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// persistenceConfig adapts core.DatabaseConfig to the persistence client
// configuration contract.
type persistenceConfig struct {
	cfg core.DatabaseConfig
}

func (c persistenceConfig) GetDebug() bool {
	return c.cfg.Debug
}

func (c persistenceConfig) GetDriver() string {
	return c.cfg.Driver
}

func (c persistenceConfig) GetServer() string {
	return c.cfg.DSN
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-integrations"
}

// Open connects to the configured database, registers the dialect
// migrations in migrationsFS (when given) and applies them.
func Open(ctx context.Context, cfg core.DatabaseConfig, migrationsFS fs.FS) (*persistence.Client, error) {
	cfg.Driver = strings.TrimSpace(strings.ToLower(cfg.Driver))
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: database dsn is required")
	}

	var dialect schema.Dialect
	switch cfg.Driver {
	case DriverPostgres:
		dialect = pgdialect.New()
	case DriverSQLite, "sqlite":
		cfg.Driver = DriverSQLite
		dialect = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		// shared-cache sqlite serializes writers; one connection avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{cfg: cfg}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	if migrationsFS != nil {
		client.RegisterSQLMigrations(migrationsFS)
		if err := client.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}
	return client, nil
}
