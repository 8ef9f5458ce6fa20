package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/efreitasn/depotbroker/internal/config"
	"github.com/efreitasn/depotbroker/internal/engine"
	"github.com/efreitasn/depotbroker/internal/exchange"
	"github.com/efreitasn/depotbroker/internal/handler"
	"github.com/efreitasn/depotbroker/internal/metrics"
	"github.com/efreitasn/depotbroker/internal/service"
	"github.com/efreitasn/depotbroker/internal/store"
	priceredis "github.com/efreitasn/depotbroker/internal/store/redis"
	jobsqlite "github.com/efreitasn/depotbroker/internal/store/sqlite"
)

// priceStore is a price source the seed can write to.
type priceStore interface {
	engine.PriceSource
	store.PriceSetter
}

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Stores.
	jobs, positions, closeJobs, err := openJobStore(cfg)
	if err != nil {
		logger.Error("failed to open job store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeJobs()

	prices, closePrices, err := openPriceStore(cfg)
	if err != nil {
		logger.Error("failed to open price store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closePrices()

	depots := store.NewDepotStore()
	sessions := store.NewSessionStore()

	if cfg.SeedFile != "" {
		if err := loadSeed(cfg.SeedFile, depots, sessions, prices); err != nil {
			logger.Error("failed to load seed", slog.String("path", cfg.SeedFile), slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("seed loaded", slog.String("path", cfg.SeedFile))
	}

	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Engine.
	venue := exchange.NewHTTPClient(cfg.ExchangeURL, cfg.ExchangeTimeout)
	aggregator := engine.NewDepotAggregator(positions, prices, logger)
	lifecycle := engine.NewJobLifecycle(jobs, venue, aggregator, prices, m, logger)
	splitter := engine.NewOrderSplitter(cfg.SplitThreshold, cfg.BatchValueCeiling)
	reaper := engine.NewTimeoutReaper(
		cfg.ReaperInterval,
		cfg.ReaperRetryAfter,
		cfg.TombstoneRetention,
		jobs,
		venue,
		m,
		logger,
	)

	// Services.
	guard := service.NewAuthorizationGuard(depots, sessions)
	brokerage := service.NewBrokerageService(guard, jobs, lifecycle, splitter, aggregator, prices, cfg.PlacementConcurrency, logger)

	router := handler.NewRouter(brokerage, guard, lifecycle, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger)

	// Background tasks stop when ctx is cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reaper.Start(ctx)
	go purgeSessions(ctx, sessions, time.Minute, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("job_store", cfg.JobStore),
			slog.Bool("redis_prices", cfg.RedisAddr != ""),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Stop accepting requests first, then the reaper.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	logger.Info("server stopped")
}

// openJobStore returns the job and position stores. Positions live next to
// the jobs so a SQLite deployment keeps both across restarts.
func openJobStore(cfg *config.Config) (engine.JobStore, engine.PositionStore, func(), error) {
	if cfg.JobStore != config.JobStoreSQLite {
		return store.NewJobStore(), store.NewPositionStore(), func() {}, nil
	}
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, nil, err
		}
	}
	s, err := jobsqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, nil, nil, err
	}
	return s, s.Positions(), func() { _ = s.Close() }, nil
}

func openPriceStore(cfg *config.Config) (priceStore, func(), error) {
	if cfg.RedisAddr == "" {
		return store.NewPriceStore(), func() {}, nil
	}
	s, err := priceredis.New(priceredis.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func loadSeed(path string, depots *store.DepotStore, sessions *store.SessionStore, prices store.PriceSetter) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return store.LoadSeed(ctx, f, depots, sessions, prices)
}

// purgeSessions drops expired sessions every interval until ctx is done.
func purgeSessions(ctx context.Context, sessions *store.SessionStore, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := sessions.PurgeExpired(now); n > 0 {
				logger.Debug("expired sessions purged", slog.Int("count", n))
			}
		}
	}
}
