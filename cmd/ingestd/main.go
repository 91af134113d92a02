// Command ingestd runs the HealthKit ingestion daemon: load config, apply
// migrations, connect to Postgres, and serve the HTTP surface from
// internal/httpapi.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/ingestd/internal/auth"
	"github.com/claude/ingestd/internal/config"
	"github.com/claude/ingestd/internal/httpapi"
	"github.com/claude/ingestd/internal/ingest"
	"github.com/claude/ingestd/internal/store"

	"log/slog"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("ingestd starting", "version", Version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dsn := cfg.Database.DSN()
	if err := store.RunMigrations(dsn, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	ctx := context.Background()
	db, err := store.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	cache, err := auth.NewRistrettoCache(5 * time.Minute)
	if err != nil {
		log.Error("failed to build api key cache", "error", err)
		os.Exit(1)
	}
	gate := auth.NewGate(db, cache)

	handler := ingest.New(db, db, ingest.Config{
		MaxPayloadBytes:                  cfg.Ingest.MaxPayloadBytes,
		AsyncThresholdMetrics:            cfg.Ingest.AsyncThresholdMetrics,
		DuplicateWindow:                  cfg.DuplicateWindow(),
		StoreTimeout:                     cfg.StoreTimeout(),
		Batch:                            cfg.ToBatchConfig(),
		LossPercentageThreshold:          cfg.Ingest.LossPercentageThreshold,
		SilentFailureParamLimitThreshold: cfg.Ingest.SilentFailureParamLimitThreshold,
	}, log)

	srv := httpapi.New(handler, gate, db, nil, nil, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("listen failed", "addr", addr, "error", err)
		os.Exit(1)
	}
	log.Info("server starting", "addr", addr)

	httpSrv := &http.Server{
		Handler:      srv,
		ReadTimeout:  cfg.RequestTimeout(),
		WriteTimeout: cfg.RequestTimeout(),
	}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}
