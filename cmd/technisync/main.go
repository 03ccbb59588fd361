// Command technisync runs the reconciliation daemon: it loads
// configuration, opens the mirror store, and drives the reconciliation
// engine on a fixed schedule until asked to stop.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/monstermuffin/technisync/internal/config"
	"github.com/monstermuffin/technisync/internal/engine"
	"github.com/monstermuffin/technisync/internal/fleet"
	"github.com/monstermuffin/technisync/internal/logging"
	"github.com/monstermuffin/technisync/internal/mirror"
	"github.com/monstermuffin/technisync/internal/ports"
	"github.com/monstermuffin/technisync/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "technisync:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logger, closeLog, err := logging.New(level, "technisync.log")
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer func() {
		if cerr := closeLog(); cerr != nil {
			fmt.Fprintln(os.Stderr, "technisync: closing log file:", cerr)
		}
	}()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open mirror database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(10 * time.Minute)

	store, err := mirror.Open(ctx, db, logger, mirror.Options{Reset: os.Getenv("TECHNISYNC_RESET_SCHEMA") == "true"})
	if err != nil {
		return fmt.Errorf("open mirror store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("closing mirror store", "error", cerr)
		}
	}()

	fleetClients := make(map[string]ports.FleetClient, len(cfg.Servers))
	for _, s := range cfg.Servers {
		fleetClients[s.Name] = fleet.New(s.Name, s.URL, s.APIKey, false, logger)
	}

	eng := engine.New(cfg, store, fleetClients, engine.WithLogger(logger))
	sched := scheduler.New(eng, cfg.SyncInterval, logger)

	group, groupCtx := errgroup.WithContext(ctx)

	metricsAddr := os.Getenv("METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group.Go(func() error {
		logger.Info("metrics server listening", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		sched.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
