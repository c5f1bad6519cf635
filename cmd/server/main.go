package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Simplici0/filaprint/internal/analytics"
	"github.com/Simplici0/filaprint/internal/config"
	"github.com/Simplici0/filaprint/internal/db"
	"github.com/Simplici0/filaprint/internal/logging"
	"github.com/Simplici0/filaprint/internal/metrics"
	"github.com/Simplici0/filaprint/internal/migrations"
	"github.com/Simplici0/filaprint/internal/printjob"
	"github.com/Simplici0/filaprint/internal/seed"
	"github.com/Simplici0/filaprint/internal/storage"
)

type server struct {
	cfg       config.Config
	store     *db.Store
	db        *sql.DB
	auth      *authService
	files     storage.Storage
	prints    *printjob.Service
	analytics *analytics.Service
	metrics   *metrics.Recorder
	log       *zap.Logger
	now       func() time.Time
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		envFile    string
		configFile string
	)

	load := func() (config.Config, *zap.Logger, error) {
		cfg, err := config.Load(envFile, configFile)
		if err != nil {
			return config.Config{}, nil, err
		}
		log, err := logging.New(cfg.Environment)
		if err != nil {
			return config.Config{}, nil, fmt.Errorf("build logger: %w", err)
		}
		for _, warning := range cfg.Warnings() {
			log.Warn(warning)
		}
		return cfg, log, nil
	}

	serve := func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := load()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		return runServer(cmd.Context(), cfg, log)
	}

	root := &cobra.Command{
		Use:           "filaprint",
		Short:         "Track filament spools, printers and print costs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional config file (yaml, json or toml)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  serve,
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runMigrate(cmd.Context(), cfg, log)
		},
	})

	return root
}

func runMigrate(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	store := db.NewStore(cfg.DBPath)
	defer store.Close()

	database, err := store.Connect(ctx)
	if err != nil {
		return err
	}
	if err := migrations.Up(ctx, database); err != nil {
		return fmt.Errorf("run database migrations: %w", err)
	}

	version, err := migrations.Version(ctx, database)
	if err != nil {
		return err
	}
	log.Info("database migrated", zap.String("path", cfg.DBPath), zap.Int64("version", version))
	return nil
}

func runServer(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := db.NewStore(cfg.DBPath)
	defer store.Close()

	database, err := store.Connect(ctx)
	if err != nil {
		return err
	}
	if err := migrations.Up(ctx, database); err != nil {
		return fmt.Errorf("run database migrations: %w", err)
	}

	stats, err := seed.Run(ctx, database, seed.Config{
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
	}, time.Now())
	if err != nil {
		return fmt.Errorf("run startup seed: %w", err)
	}
	log.Info("startup seed finished", zap.Int("inserts", stats.Inserts), zap.Int("updates", stats.Updates))

	files, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init file storage: %w", err)
	}

	srv := newServer(cfg, store, database, files, metrics.New(), log)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", httpServer.Addr), zap.String("env", cfg.Environment), zap.String("storage", cfg.Storage.Backend))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func newServer(cfg config.Config, store *db.Store, database *sql.DB, files storage.Storage, rec *metrics.Recorder, log *zap.Logger) *server {
	now := time.Now
	return &server{
		cfg:   cfg,
		store: store,
		db:    database,
		auth:  newAuthService(cfg.JWTSecret, cfg.IsProduction()),
		files: files,
		prints: printjob.NewService(printjob.ServiceParams{
			DB:      database,
			Files:   files,
			Log:     log.Named("prints"),
			Metrics: rec,
			Now:     now,
		}),
		analytics: analytics.NewService(database, files, log.Named("analytics"), now),
		metrics:   rec,
		log:       log,
		now:       now,
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(s.log))
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(s.authMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", s.metrics.Handler())

	r.Get("/login", s.handleLoginForm)
	r.Post("/login", s.handleLoginSubmit)
	r.Get("/register", s.handleRegisterForm)
	r.Post("/register", s.handleRegisterSubmit)
	r.Post("/logout", s.handleLogout)

	r.Get("/", s.handleDashboard)

	r.Get("/settings", s.handleSettings)
	r.Post("/settings/profile", s.handleSettingsProfile)
	r.Post("/settings/password", s.handleSettingsPassword)

	r.With(s.requireAdmin).Get("/admin/users", s.handleAdminUsers)

	r.Get("/spools", s.handleSpoolsList)
	r.Post("/spools", s.handleSpoolsCreate)
	r.Post("/spools/{id}", s.handleSpoolsUpdate)
	r.Post("/spools/{id}/delete", s.handleSpoolsDelete)
	r.Get("/api/spools", s.handleAPISpoolsList)
	r.Post("/api/spools", s.handleAPISpoolsCreate)

	r.Get("/printers", s.handlePrintersList)
	r.Post("/printers", s.handlePrintersCreate)
	r.Post("/printers/{id}", s.handlePrintersUpdate)
	r.Post("/printers/{id}/delete", s.handlePrintersDelete)

	r.Get("/prints", s.handlePrintsList)
	r.Post("/prints", s.handlePrintsCreate)
	r.Post("/prints/{id}", s.handlePrintsUpdate)
	r.Post("/prints/{id}/delete", s.handlePrintsDelete)
	r.Post("/prints/{id}/duplicate", s.handlePrintsDuplicate)

	r.Get("/library", s.handleLibrary)
	r.Get("/analytics", s.handleAnalytics)

	r.Post("/api/upload-stl", s.handleModelUpload)
	r.Get("/uploads/*", s.handleModelDownload)

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, failure{Reason: reasonDBError})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
