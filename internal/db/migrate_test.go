package db_test

import (
	"context"
	"testing"

	dbfs "github.com/garnizeh/contest/db"
	"github.com/garnizeh/contest/internal/db"
)

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	d := openTemp(t)

	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	var count int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("scan schema_migrations count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 migrations recorded, got %d", count)
	}

	for _, table := range []string{"users", "competitions", "challenges", "submissions", "submission_files", "submission_history", "submission_file_history", "platform_settings", "jobs", "dead_letter_jobs"} {
		var name string
		if err := d.QueryRow(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("expected %s table exists: %v", table, err)
		}
	}
}

func TestMigrate_SeedsSettingsWithoutOverwriting(t *testing.T) {
	ctx := context.Background()
	d := openTemp(t)

	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	var name string
	if err := d.QueryRow(ctx, `SELECT value FROM platform_settings WHERE key = 'platform_name'`).Scan(&name); err != nil {
		t.Fatalf("platform_name not seeded: %v", err)
	}
	if name != "CTF Platform" {
		t.Fatalf("unexpected seeded name %q", name)
	}

	if _, err := d.Exec(ctx, `UPDATE platform_settings SET value = 'Custom' WHERE key = 'platform_name'`); err != nil {
		t.Fatalf("update setting: %v", err)
	}
	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("re-migrate failed: %v", err)
	}
	if err := d.QueryRow(ctx, `SELECT value FROM platform_settings WHERE key = 'platform_name'`).Scan(&name); err != nil {
		t.Fatalf("read setting: %v", err)
	}
	if name != "Custom" {
		t.Fatalf("seed overwrote operator value: %q", name)
	}
}

func TestHistoryTablesAreAppendOnly(t *testing.T) {
	ctx := context.Background()
	d := openTemp(t)
	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	_, err := d.Exec(ctx, `INSERT INTO submission_history (original_submission_id, competition_id, user_id, challenge_id, answer_text, status, points_awarded, submitted_at, archived_at) VALUES (1, 1, 1, 1, 'a', 'pending', 0, 1, 2)`)
	if err != nil {
		t.Fatalf("insert history: %v", err)
	}
	if _, err := d.Exec(ctx, `UPDATE submission_history SET answer_text = 'b'`); err == nil {
		t.Fatalf("expected update on history to be refused")
	}
	if _, err := d.Exec(ctx, `DELETE FROM submission_history`); err == nil {
		t.Fatalf("expected delete on history to be refused")
	}
}
