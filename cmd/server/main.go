// Package main runs the settlement engine HTTP server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	app "github.com/stakewell/engine/internal/app"
	"github.com/stakewell/engine/internal/app/httpapi"
	"github.com/stakewell/engine/internal/config"
	"github.com/stakewell/engine/internal/platform/migrations"
	gamifysvc "github.com/stakewell/engine/internal/services/gamify"
	"github.com/stakewell/engine/internal/storage/postgres"
	"github.com/stakewell/engine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("server").WithError(err).Error("configuration invalid")
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}).WithField("component", "server")

	stores, closeDB, err := buildStores(cfg.Database, log)
	if err != nil {
		log.WithError(err).Error("storage init failed")
		os.Exit(1)
	}
	if closeDB != nil {
		defer closeDB()
	}

	catalog, err := gamifysvc.LoadCatalog(cfg.Gamify.CatalogPath)
	if err != nil {
		log.WithError(err).Error("gamify catalog invalid")
		os.Exit(1)
	}

	application, err := app.New(stores, app.Options{
		SettlementInterval: cfg.Scheduler.Interval,
		Catalog:            catalog,
		WebhookSecret:      cfg.Payments.WebhookSecret,
		GatewayMode:        cfg.Payments.Mode,
		GatewayURL:         cfg.Payments.Endpoint,
		GatewayKey:         cfg.Payments.APIKey,
	}, log)
	if err != nil {
		log.WithError(err).Error("application init failed")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("application start failed")
		os.Exit(1)
	}

	handler := httpapi.NewHandler(application, httpapi.Config{
		APIToken:     cfg.Server.APIToken,
		CORSOrigin:   cfg.Server.CORSOrigin,
		WebhookRate:  cfg.Server.WebhookRate,
		WebhookBurst: cfg.Server.WebhookBurst,
		AuditLogPath: cfg.Server.AuditLogPath,
	}, log)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		log.WithError(err).Error("server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}

	log.Info("stopped")
}

// buildStores selects Postgres when a DATABASE_URL is configured and the
// in-memory store otherwise. The returned closer is nil for memory.
func buildStores(cfg config.DatabaseConfig, log *logger.Logger) (app.Stores, func(), error) {
	if cfg.URL == "" {
		log.Info("no DATABASE_URL set, using in-memory storage")
		return app.Stores{}, nil, nil
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return app.Stores{}, nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return app.Stores{}, nil, err
	}
	if err := migrations.Apply(pingCtx, db); err != nil {
		db.Close()
		return app.Stores{}, nil, err
	}

	store := postgres.New(db)
	return app.Stores{
		Wallets:   store,
		Contracts: store,
		Platform:  store,
		Badges:    store,
	}, func() { db.Close() }, nil
}
