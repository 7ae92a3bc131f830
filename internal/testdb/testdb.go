// Package testdb opens migrated throwaway SQLite databases for tests.
package testdb

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	dbfs "github.com/garnizeh/contest/db"
	"github.com/garnizeh/contest/internal/db"
	"github.com/garnizeh/contest/internal/repository/sqlite"
)

// Open creates a migrated database under t.TempDir and closes it on cleanup.
func Open(t testing.TB) (*db.DB, *sqlite.SQLiteRepo) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	d, err := db.New(ctx, filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return d, sqlite.New(d, logger)
}
