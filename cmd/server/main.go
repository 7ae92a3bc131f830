package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garnizeh/contest/api"
	dbfs "github.com/garnizeh/contest/db"
	"github.com/garnizeh/contest/internal/config"
	"github.com/garnizeh/contest/internal/contest"
	"github.com/garnizeh/contest/internal/db"
	"github.com/garnizeh/contest/internal/grading"
	"github.com/garnizeh/contest/internal/jobs"
	"github.com/garnizeh/contest/internal/repository/sqlite"
	"github.com/garnizeh/contest/internal/schemas"
	"github.com/garnizeh/contest/internal/storage"
	"github.com/garnizeh/contest/pkg/ollama"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)
	api.SetLogger(logger)
	ollama.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting contest server", "version", version, "build_time", buildTime)

	conn, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Error("close db", "err", err)
		}
	}()
	if err := db.Migrate(ctx, conn, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	repo := sqlite.New(conn, logger)

	files, uploads, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}

	loader, err := schemas.NewLoader()
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}
	grader, closeGrader, err := grading.FromConfig(cfg, loader, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeGrader() }()

	svc, err := contest.New(contest.Options{
		Store:              repo,
		Files:              files,
		Schemas:            loader,
		AllowedExtensions:  cfg.Uploads.AllowedExtensions,
		GradingEnabled:     grader != nil,
		GradingMaxAttempts: cfg.Grading.MaxAttempts,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	created, err := svc.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		logger.Warn("created default admin account; change its password", "username", cfg.Admin.Username)
	}
	if err := svc.EnsureDefaults(ctx, map[string]string{
		contest.SettingPlatformName: cfg.Platform.Name,
		contest.SettingPlatformLogo: cfg.Platform.Logo,
		contest.SettingFooterText:   cfg.Platform.Footer,
	}); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	handler := api.SetupRoutes(cfg, version, buildTime, api.Deps{
		Service: svc,
		Ping:    func(ctx context.Context) error { return conn.GetConn().PingContext(ctx) },
		Uploads: uploads,
	})
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		// Give outstanding requests 30 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if grader != nil {
		pool := jobs.NewWorkerPool(repo, map[string]jobs.Handler{
			contest.JobGradeSubmission: svc.GradingHandler(grader, cfg.Grading.UserRefSalt),
		}, logger, cfg.Grading.Workers, jobs.WithPollInterval(cfg.Grading.PollInterval))
		g.Go(func() error {
			logger.Info("grading workers started", "provider", cfg.Grading.Provider, "workers", cfg.Grading.Workers)
			return pool.Run(gctx)
		})
	}

	return g.Wait()
}

// openStorage returns the configured blob store and, for the local backend,
// the handler serving its files.
func openStorage(ctx context.Context, cfg *config.Config) (storage.Store, http.Handler, error) {
	u := cfg.Uploads
	if u.Backend == config.BackendS3 {
		s, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:       u.S3.Bucket,
			Region:       u.S3.Region,
			Endpoint:     u.S3.Endpoint,
			AccessKey:    u.S3.AccessKey,
			SecretKey:    u.S3.SecretKey,
			UsePathStyle: u.S3.UsePathStyle,
			Prefix:       u.S3.Prefix,
			PresignTTL:   u.PresignTTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 storage: %w", err)
		}
		return s, nil, nil
	}

	s, err := storage.NewLocalStore(u.Dir, u.PublicBaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("local storage: %w", err)
	}
	return s, api.UploadsHandler(s), nil
}
