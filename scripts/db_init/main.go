package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	dbfs "github.com/garnizeh/contest/db"
	"github.com/garnizeh/contest/internal/config"
	"github.com/garnizeh/contest/internal/contest"
	"github.com/garnizeh/contest/internal/db"
	"github.com/garnizeh/contest/internal/repository/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadConfig(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Log.NewLogger(os.Stderr)

	database, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DB init error: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	// run migrations and seed using internal/db.Migrate
	if err := db.Migrate(ctx, database, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		fmt.Fprintf(os.Stderr, "Migration runner error: %v\n", err)
		os.Exit(1)
	}

	svc, err := contest.New(contest.Options{Store: sqlite.New(database, logger), Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service error: %v\n", err)
		os.Exit(1)
	}
	created, err := svc.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Admin bootstrap error: %v\n", err)
		os.Exit(1)
	}
	if err := svc.EnsureDefaults(ctx, map[string]string{
		contest.SettingPlatformName: cfg.Platform.Name,
		contest.SettingPlatformLogo: cfg.Platform.Logo,
		contest.SettingFooterText:   cfg.Platform.Footer,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Settings error: %v\n", err)
		os.Exit(1)
	}

	if created {
		fmt.Printf("Created admin account %q.\n", cfg.Admin.Username)
	}
	fmt.Println("Database initialized successfully.")
}
