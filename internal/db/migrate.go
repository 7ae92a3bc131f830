package db

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// Migrate applies every SQL file under migrations/ in migrationFS that is not
// yet recorded in schema_migrations, then seeds default platform settings
// from seed/platform_settings.json in seedFS. Seeding never overwrites a
// value an operator already changed.
func Migrate(ctx context.Context, d *DB, migrationFS fs.FS, seedFS fs.FS) error {
	if _, err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	migDir := "migrations"

	entries, err := fs.ReadDir(migrationFS, migDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(strings.ToLower(name), ".sql") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	for _, fname := range files {
		version := strings.TrimSuffix(fname, path.Ext(fname))

		var count int
		if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration applied count: %w", err)
		}
		if count > 0 {
			continue
		}

		b, err := fs.ReadFile(migrationFS, path.Join(migDir, fname))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", fname, err)
		}

		err = WithTx(ctx, d.conn, nil, func(ctx context.Context, tx DBTX) error {
			if _, err := tx.ExecContext(ctx, string(b)); err != nil {
				return fmt.Errorf("exec migration %s: %w", fname, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied) VALUES (?, ?)`, version, time.Now().UTC().UnixMilli()); err != nil {
				return fmt.Errorf("record migration %s: %w", fname, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		d.logger.Info("migration applied", "version", version)
	}

	return seedSettings(ctx, d, seedFS)
}

func seedSettings(ctx context.Context, d *DB, seedFS fs.FS) error {
	if seedFS == nil {
		return nil
	}
	b, err := fs.ReadFile(seedFS, path.Join("seed", "platform_settings.json"))
	if err != nil {
		// seeds are optional
		return nil
	}
	var defaults map[string]string
	if err := json.Unmarshal(b, &defaults); err != nil {
		return fmt.Errorf("decode settings seed: %w", err)
	}
	now := time.Now().UTC().UnixMilli()
	for k, v := range defaults {
		if _, err := d.Exec(ctx, `INSERT OR IGNORE INTO platform_settings (key, value, updated) VALUES (?, ?, ?)`, k, v, now); err != nil {
			return fmt.Errorf("seed setting %s: %w", k, err)
		}
	}
	return nil
}
