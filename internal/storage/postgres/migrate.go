package postgres

import (
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // registers the postgres:// driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationFS embed.FS

// MigrationSet names one independently versioned schema.
type MigrationSet string

// Schemas owned by this package. Each keeps its own version table so both can
// live in one database when the DSNs match.
const (
	GamesSchema MigrationSet = "games"
	ItemsSchema MigrationSet = "items"
)

func (s MigrationSet) table() string {
	return "schema_migrations_" + string(s)
}

// Migrate applies every pending up migration of set against dsn.
func Migrate(dsn string, set MigrationSet) error {
	switch set {
	case GamesSchema, ItemsSchema:
	default:
		return fmt.Errorf("unknown migration set %q", set)
	}
	target, err := migrationURL(dsn, set.table())
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationFS, "migrations/"+string(set))
	if err != nil {
		return fmt.Errorf("open %s migrations: %w", set, err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, target)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run %s migrations: %w", set, err)
	}
	return nil
}

// migrationURL pins the version table of a postgres:// DSN.
func migrationURL(dsn, table string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse migration dsn: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("migrations require a postgres:// dsn, got scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("x-migrations-table", table)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
