package sqlite

import (
	"context"
	"fmt"

	"github.com/garnizeh/contest/pkg/models"
)

func (r *SQLiteRepo) GetSettings(ctx context.Context) (models.Settings, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT key, value FROM platform_settings`)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()

	out := make(models.Settings)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO platform_settings (key, value, updated) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated = excluded.updated`, key, value, now())
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
