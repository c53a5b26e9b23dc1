package postgres

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationURLAddsVersionTable(t *testing.T) {
	t.Parallel()

	got, err := migrationURL("postgres://u:p@localhost:5432/steam?sslmode=disable", GamesSchema.table())
	require.NoError(t, err)
	require.Equal(t, "postgres://u:p@localhost:5432/steam?sslmode=disable&x-migrations-table=schema_migrations_games", got)

	_, err = migrationURL("host=localhost dbname=steam", "t")
	require.Error(t, err)
}

func TestMigrateRejectsUnknownSet(t *testing.T) {
	t.Parallel()
	require.ErrorContains(t, Migrate("postgres://localhost/x", MigrationSet("other")), "unknown migration set")
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()

	for _, set := range []MigrationSet{GamesSchema, ItemsSchema} {
		ups, err := fs.Glob(migrationFS, "migrations/"+string(set)+"/*.up.sql")
		require.NoError(t, err)
		downs, err := fs.Glob(migrationFS, "migrations/"+string(set)+"/*.down.sql")
		require.NoError(t, err)
		require.NotEmpty(t, ups)
		require.Len(t, downs, len(ups))
	}
}
