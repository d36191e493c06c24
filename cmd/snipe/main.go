// Package main runs the snipe engine.
//
// Roles:
//   - detector: vault subscriptions, dispatch to shards and the HTTP API
//   - executor: one shard worker executing checks
//   - all:      detector plus every shard in one process
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"solana-snipe-engine/internal/config"
	"solana-snipe-engine/internal/logging"
	"solana-snipe-engine/internal/snipe"
)

const (
	roleDetector = "detector"
	roleExecutor = "executor"
	roleAll      = "all"
)

func main() {
	envFile := flag.String("env", "", "Env file to load (default: .env when present)")
	role := flag.String("role", roleAll, "Process role: detector, executor or all")
	shard := flag.Int("shard", 0, "Shard index served by an executor")
	shards := flag.Int("shards", 0, "Number of executor shards (default: SNIPE_SHARDS)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory stores and fabric (role=all only)")
	httpAddr := flag.String("http-addr", "", "HTTP address for health, metrics and API (default: METRICS_ADDR)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *shards > 0 {
		cfg.Shards = *shards
	}
	if *httpAddr != "" {
		cfg.MetricsAddr = *httpAddr
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}

	if err := validateFlags(*role, *shard, cfg.Shards, *useMemory); err != nil {
		logger.WithError(err).Fatal("invalid flags")
	}
	log := logger.WithFields(logrus.Fields{"role": *role, "chain": cfg.Chain})
	log.WithField("config", fmt.Sprintf("%+v", cfg.Redacted())).Info("starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, cfg, logger, *useMemory)
	if err != nil {
		log.WithError(err).Fatal("open stores")
	}
	defer a.Close()

	done := make(chan struct{})
	go handleSignals(cancel, a, log, done)

	srv := &http.Server{Addr: cfg.MetricsAddr, ReadHeaderTimeout: 5 * time.Second}
	err = run(ctx, a, *role, *shard, srv)
	close(done)

	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("engine stopped")
	}
	log.Info("shutdown complete")
}

func validateFlags(role string, shard, shards int, useMemory bool) error {
	switch role {
	case roleDetector, roleAll:
	case roleExecutor:
		if shard < 0 || shard >= shards {
			return fmt.Errorf("-shard %d outside [0, %d)", shard, shards)
		}
	default:
		return fmt.Errorf("unknown -role %q", role)
	}
	if useMemory && role != roleAll {
		return fmt.Errorf("-use-memory needs -role=all, separate processes cannot share memory")
	}
	return nil
}

// run starts the components of role and the HTTP server, and blocks until ctx
// is done or a component fails.
func run(ctx context.Context, a *app, role string, shard int, srv *http.Server) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var det *detector
	if role == roleDetector || role == roleAll {
		d, err := a.newDetector(ctx)
		if err != nil {
			return err
		}
		defer d.Close()
		det = d
	}

	var executorShards []int
	switch role {
	case roleExecutor:
		executorShards = []int{shard}
	case roleAll:
		for i := 0; i < a.cfg.Shards; i++ {
			executorShards = append(executorShards, i)
		}
	}
	workers := make([]*snipe.Worker, 0, len(executorShards))
	for _, s := range executorShards {
		w, err := a.newWorker(s)
		if err != nil {
			return err
		}
		workers = append(workers, w)
	}

	var (
		wg   sync.WaitGroup
		once sync.Once
		ferr error
	)
	fail := func(err error) {
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		once.Do(func() {
			ferr = err
			cancel()
		})
	}

	for _, w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fail(w.Run(ctx))
		}()
	}

	if det != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fail(det.Run(ctx))
		}()
	}

	srv.Handler = newAPI(a, det).Handler()
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fail(fmt.Errorf("http server: %w", err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	wg.Wait()

	if ferr != nil {
		return ferr
	}
	return ctx.Err()
}

// handleSignals cancels on SIGINT/SIGTERM, forces exit on a second signal or
// after 30s, and reloads the wallet keyring on SIGHUP.
func handleSignals(cancel context.CancelFunc, a *app, log logrus.FieldLogger, done <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-done:
			return
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if err := a.reloadWallets(); err != nil {
					log.WithError(err).Error("reload wallet keyring")
				} else {
					log.Info("wallet keyring reloaded")
				}
				continue
			}
			log.WithField("signal", sig.String()).Info("shutting down")
			cancel()

			select {
			case sig := <-sigCh:
				log.WithField("signal", sig.String()).Warn("second signal, forcing exit")
				os.Exit(1)
			case <-time.After(30 * time.Second):
				log.Warn("graceful shutdown timed out after 30s, forcing exit")
				os.Exit(1)
			case <-done:
				return
			}
		}
	}
}
