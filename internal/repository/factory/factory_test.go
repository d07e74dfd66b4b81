package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/showcase-portal/internal/config"
)

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "nested", "showcase.db"),
		JournalMode: "WAL",
		BusyTimeout: 1000,
	}

	db, err := Open(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrator.Migrate(ctx))
	require.NoError(t, db.Health.Health(ctx))

	count, size, err := db.Repos.Blob.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Zero(t, size)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle"}, zerolog.Nop())
	require.ErrorContains(t, err, "unsupported database driver")
}

func TestSQLiteConfig(t *testing.T) {
	sc := SQLiteConfig(config.DatabaseConfig{Path: "x.db", SynchronousMode: "FULL"})
	require.Equal(t, "x.db", sc.Path)
	require.Equal(t, "FULL", sc.SynchronousMode)
	require.Equal(t, "WAL", sc.JournalMode)
	require.Equal(t, 5000, sc.BusyTimeout)
}
