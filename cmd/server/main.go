// Package main runs the forms service HTTP server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/formsdesk/formsdesk/internal/app"
	"github.com/formsdesk/formsdesk/internal/app/httpapi"
	"github.com/formsdesk/formsdesk/internal/app/metrics"
	"github.com/formsdesk/formsdesk/internal/app/storage/postgres"
	"github.com/formsdesk/formsdesk/internal/config"
	"github.com/formsdesk/formsdesk/internal/database"
	"github.com/formsdesk/formsdesk/internal/middleware"
	"github.com/formsdesk/formsdesk/internal/pdf"
	"github.com/formsdesk/formsdesk/internal/platform/migrations"
	"github.com/formsdesk/formsdesk/pkg/logger"
)

func main() {
	_ = godotenv.Load() // allow .env for local runs

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log = log.WithField("component", "server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores := app.Stores{}
	var db *database.DB
	if cfg.Database.URL != "" {
		db, err = database.Open(database.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		}, log)
		if err != nil {
			log.WithError(err).Error("configure database")
			os.Exit(1)
		}
		defer db.Close()

		// A slow-waking backend must never keep the server from listening;
		// the first real query retries lazily anyway.
		if err := db.ConnectWithRetry(ctx, 5); err != nil {
			log.WithError(err).Warn("database not reachable at startup; continuing")
		}

		applyMigrations(ctx, cfg, db, log)

		stores.Records = postgres.New(db)
	} else {
		log.Warn("DATABASE_URL not set; using in-memory record store")
	}

	renderer, err := pdf.New(cfg.PDF.ChromePath, log)
	if err != nil {
		log.WithError(err).Error("configure pdf renderer")
		os.Exit(1)
	}

	application := app.New(stores, renderer, log)

	limiter := middleware.NewRateLimiter(20, 40, log)
	limiter.StartCleanup(10 * time.Minute)
	cors := middleware.NewCORSMiddleware([]string{"*"})

	var handler http.Handler = httpapi.NewHandler(application, log)
	handler = metrics.InstrumentHandler(handler)
	handler = middleware.LoggingMiddleware(log)(handler)
	handler = limiter.Handler(handler)
	handler = cors.Handler(handler)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("forms service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}

// applyMigrations runs the schema over the direct (non-pooled) connection
// when one is configured, since poolers reject some DDL. Failure is logged
// and swallowed: the table usually already exists.
func applyMigrations(ctx context.Context, cfg *config.Config, pooled *database.DB, log *logger.Logger) {
	migrCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if cfg.Database.DirectURL != "" {
		dsn, err := database.NormalizeDSN(cfg.Database.DirectURL)
		if err != nil {
			log.WithError(err).Warn("invalid direct database url; skipping migrations")
			return
		}
		direct, err := sql.Open("postgres", dsn)
		if err != nil {
			log.WithError(err).Warn("open direct connection; skipping migrations")
			return
		}
		defer direct.Close()
		if err := migrations.Apply(migrCtx, direct); err != nil {
			log.WithError(err).Warn("apply migrations over direct connection")
		}
		return
	}

	err := pooled.Execute(migrCtx, func(db *sql.DB) error {
		return migrations.Apply(migrCtx, db)
	})
	if err != nil {
		log.WithError(err).Warn("apply migrations")
	}
}
