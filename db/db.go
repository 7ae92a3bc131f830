// Package db embeds the SQL migrations and seed data applied by
// internal/db.Migrate.
package db

import "embed"

// Migrations holds migrations/NNNN_name.sql, applied in filename order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// SeedFiles holds seed/platform_settings.json, the default platform
// settings inserted when a key is missing.
//
//go:embed seed/*.json
var SeedFiles embed.FS
