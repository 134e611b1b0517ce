// Package migrations exposes the embedded integrations schema to hosts that
// run their own go-persistence-bun migrator.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"sort"
	"strings"

	integrations "github.com/goliatone/go-integrations"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const DefaultSourceLabel = "go-integrations"

// Step is one schema version with both of its scripts.
type Step struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// Source is the migration directory for one dialect.
type Source struct {
	Dialect string
	Driver  string
	FS      fs.FS
	Steps   []Step
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type registration struct {
	label    string
	dialects []string
}

type Option func(*registration)

func WithSourceLabel(label string) Option {
	return func(r *registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.label = trimmed
		}
	}
}

// WithDialects limits registration to the named dialects.
func WithDialects(dialects ...string) Option {
	return func(r *registration) {
		selected := make([]string, 0, len(dialects))
		for _, dialect := range dialects {
			dialect = strings.TrimSpace(strings.ToLower(dialect))
			if dialect != "" && !slices.Contains(selected, dialect) {
				selected = append(selected, dialect)
			}
		}
		if len(selected) > 0 {
			r.dialects = selected
		}
	}
}

var dialectDrivers = []struct {
	dialect string
	driver  string
}{
	{dialect: DialectPostgres, driver: "postgres"},
	{dialect: DialectSQLite, driver: "sqlite3"},
}

// Sources resolves the embedded migrations of every supported dialect.
func Sources() ([]Source, error) {
	sources := make([]Source, 0, len(dialectDrivers))
	for _, entry := range dialectDrivers {
		fsys, err := integrations.DialectMigrationsFS(entry.driver)
		if err != nil {
			return nil, fmt.Errorf("migrations: resolve %s: %w", entry.dialect, err)
		}
		steps, err := Steps(fsys)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s: %w", entry.dialect, err)
		}
		sources = append(sources, Source{
			Dialect: entry.dialect,
			Driver:  entry.driver,
			FS:      fsys,
			Steps:   steps,
		})
	}
	return sources, nil
}

// Steps lists the versions found in fsys in ascending order. Every version
// must ship an up and a down script.
func Steps(fsys fs.FS) ([]Step, error) {
	matches, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}
	byVersion := map[string]*Step{}
	for _, filename := range matches {
		base, direction, ok := splitScriptName(filename)
		if !ok {
			return nil, fmt.Errorf("unexpected migration file %q", filename)
		}
		version, name, _ := strings.Cut(base, "_")
		step := byVersion[version]
		if step == nil {
			step = &Step{Version: version, Name: name}
			byVersion[version] = step
		}
		if step.Name != name {
			return nil, fmt.Errorf("version %s has conflicting names %q and %q", version, step.Name, name)
		}
		if direction == "up" {
			step.Up = filename
		} else {
			step.Down = filename
		}
	}
	if len(byVersion) == 0 {
		return nil, fmt.Errorf("no migration scripts found")
	}

	steps := make([]Step, 0, len(byVersion))
	for _, step := range byVersion {
		if step.Up == "" || step.Down == "" {
			return nil, fmt.Errorf("version %s is missing its up or down script", step.Version)
		}
		steps = append(steps, *step)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps, nil
}

func splitScriptName(filename string) (string, string, bool) {
	for _, direction := range []string{"up", "down"} {
		suffix := "." + direction + ".sql"
		if strings.HasSuffix(filename, suffix) {
			base := strings.TrimSuffix(filename, suffix)
			return base, direction, base != ""
		}
	}
	return "", "", false
}

// Register hands each selected dialect's migrations to registerFn, for
// example a closure around persistence.Client.RegisterSQLMigrations.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) ([]Source, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	reg := registration{
		label:    DefaultSourceLabel,
		dialects: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	sources, err := Sources()
	if err != nil {
		return nil, err
	}
	registered := make([]Source, 0, len(reg.dialects))
	for _, source := range sources {
		if !slices.Contains(reg.dialects, source.Dialect) {
			continue
		}
		if err := registerFn(ctx, source.Dialect, reg.label, source.FS); err != nil {
			return registered, fmt.Errorf("migrations: register %s: %w", source.Dialect, err)
		}
		registered = append(registered, source)
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("migrations: no dialect matched %v", reg.dialects)
	}
	return registered, nil
}
