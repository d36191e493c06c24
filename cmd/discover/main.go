// Package main runs the pool discovery scanner that fills the pool cache.
//
// Modes:
//   - live:     backfill since the saved progress, then follow AMM program logs
//   - backfill: scan history back to the saved progress and exit
//   - pool:     decode and cache a single pool by id
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"solana-snipe-engine/internal/config"
	"solana-snipe-engine/internal/discovery"
	"solana-snipe-engine/internal/logging"
	"solana-snipe-engine/internal/observability"
	"solana-snipe-engine/internal/solana"
	"solana-snipe-engine/internal/storage/migrations"
	pgstore "solana-snipe-engine/internal/storage/postgres"
	redisstore "solana-snipe-engine/internal/storage/redis"
)

func main() {
	envFile := flag.String("env", "", "Env file to load (default: .env when present)")
	mode := flag.String("mode", "live", "Mode: live, backfill or pool")
	limit := flag.Int("limit", 0, "Maximum signatures scanned by a backfill (0 = back to saved progress)")
	poolID := flag.String("pool", "", "Pool id to decode in pool mode")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP address (empty to disable)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	log := logger.WithField("mode", *mode)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, *mode, *poolID, *limit, *metricsAddr); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("discovery stopped")
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger, mode, poolID string, limit int, metricsAddr string) error {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("snipe", reg)
	if metricsAddr != "" {
		go serveMetrics(metricsAddr, reg, logger)
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	if _, err := migrations.ApplyPostgres(ctx, pool, logger); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	rdb, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	opts := discovery.ScannerOptions{
		RPC:      solana.NewHTTPClient(cfg.RPCURL, solana.WithObserver(metrics.ObserveRPC)),
		Pools:    redisstore.NewPoolCache(rdb),
		Progress: pgstore.NewDiscoveryProgressStore(pool),
		Metrics:  metrics,
		Logger:   logger,
	}

	switch mode {
	case "pool":
		if poolID == "" {
			return errors.New("-pool is required in pool mode")
		}
		scanner := discovery.NewScanner(opts)
		rec, err := scanner.LoadPool(ctx, poolID, 0)
		if err != nil {
			return err
		}
		if err := opts.Pools.Put(ctx, rec); err != nil {
			return fmt.Errorf("cache pool: %w", err)
		}
		logger.WithFields(logrus.Fields{"pool": rec.ID, "base_mint": rec.BaseMint, "quote_mint": rec.QuoteMint}).Info("pool cached")
		return nil

	case "backfill":
		scanner := discovery.NewScanner(opts)
		if _, err := scanner.Warm(ctx); err != nil {
			return err
		}
		_, err := scanner.Backfill(ctx, discovery.BackfillOptions{Limit: limit})
		return err

	case "live":
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = logger
		ws, err := solana.NewWSClient(ctx, cfg.WSURL, &wsCfg)
		if err != nil {
			return fmt.Errorf("connect websocket: %w", err)
		}
		defer ws.Close()
		opts.WS = ws

		scanner := discovery.NewScanner(opts)
		n, err := scanner.Warm(ctx)
		if err != nil {
			return err
		}
		logger.WithField("seen_pools", n).Info("seen pools loaded")

		// Subscribe first so nothing between the backfill and the live feed is missed.
		errCh := make(chan error, 1)
		go func() { errCh <- scanner.Run(ctx) }()
		if _, err := scanner.Backfill(ctx, discovery.BackfillOptions{Limit: limit}); err != nil {
			logger.WithError(err).Warn("startup backfill incomplete")
		}
		return <-errCh

	default:
		return fmt.Errorf("unknown -mode %q", mode)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.HandlerFor(reg))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.WithField("addr", addr).Info("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("metrics server")
	}
}
