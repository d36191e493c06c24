package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"solana-snipe-engine/internal/config"
	"solana-snipe-engine/internal/fabric"
	"solana-snipe-engine/internal/notify"
	"solana-snipe-engine/internal/observability"
	"solana-snipe-engine/internal/snipe"
	"solana-snipe-engine/internal/solana"
	"solana-snipe-engine/internal/storage"
	chstore "solana-snipe-engine/internal/storage/clickhouse"
	"solana-snipe-engine/internal/storage/memory"
	"solana-snipe-engine/internal/storage/migrations"
	pgstore "solana-snipe-engine/internal/storage/postgres"
	redisstore "solana-snipe-engine/internal/storage/redis"
	"solana-snipe-engine/internal/wallet"
)

// poolStore is the pool cache with its writer, shared by the API and tests.
type poolStore interface {
	storage.PoolCache
	storage.PoolWriter
}

// app holds the stores and clients shared by every role of the process.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	names    fabric.Names

	fabric  fabric.Fabric
	orders  storage.OrderStore
	guards  storage.GuardStore
	pools   poolStore
	journal storage.AttemptJournal

	// Executor clients, created on first use.
	execOnce sync.Once
	execErr  error
	rpc      *solana.HTTPClient
	bundles  solana.BundleSender
	keyring  *wallet.FileKeyring
	wallets  wallet.Provider
	sink     notify.Sink

	closers []func()
}

// openApp connects the stores. In memory mode nothing leaves the process.
func openApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger, useMemory bool) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{
		cfg:      cfg,
		log:      logger,
		registry: reg,
		metrics:  observability.NewMetrics("snipe", reg),
		names:    fabric.Names{Chain: cfg.Chain},
	}

	if useMemory {
		f := fabric.NewMemoryFabric()
		a.fabric = f
		a.closers = append(a.closers, func() { _ = f.Close() })
		a.orders = memory.NewOrderStore()
		a.guards = memory.NewGuardStore(cfg.GuardTTL)
		a.pools = memory.NewPoolCache()
		a.journal = memory.NewAttemptJournal()
		logger.Warn("using in-memory stores, state is lost on exit")
		return a, nil
	}

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	pool, err := pgstore.NewPool(ctx, a.cfg.PostgresDSN)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pool.Close)
	if _, err := migrations.ApplyPostgres(ctx, pool, a.log); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}
	a.orders = pgstore.NewOrderStore(pool)
	a.guards = pgstore.NewGuardStore(pool, a.cfg.GuardTTL)

	rdb, err := redisstore.NewClient(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	a.pools = redisstore.NewPoolCache(rdb)
	a.fabric = fabric.NewRedisFabric(rdb.Client)

	if a.cfg.ClickHouseDSN == "" {
		a.log.Warn("CLICKHOUSE_DSN not set, attempts are not journaled")
		return nil
	}
	conn, err := chstore.OpenDatabase(ctx, a.cfg.ClickHouseDSN)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = conn.Close() })
	if err := migrations.ApplyClickhouse(ctx, conn, a.log); err != nil {
		return fmt.Errorf("clickhouse migrations: %w", err)
	}
	a.journal = chstore.NewAttemptJournal(conn)
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openExecutorClients creates the RPC, bundle, wallet and notification clients once.
func (a *app) openExecutorClients() error {
	a.execOnce.Do(func() {
		a.rpc = solana.NewHTTPClient(a.cfg.RPCURL, solana.WithObserver(a.metrics.ObserveRPC))
		if a.cfg.JitoURL != "" {
			a.bundles = solana.NewJitoClient(a.cfg.JitoURL, solana.WithObserver(a.metrics.ObserveRPC))
		}

		keyring, err := wallet.OpenFileKeyring(a.cfg.WalletKeyring)
		if err != nil {
			a.execErr = fmt.Errorf("open wallet keyring: %w", err)
			return
		}
		a.keyring = keyring
		a.wallets = keyring

		sinks := notify.Multi{notify.NewLogSink(a.log)}
		if a.cfg.TelegramBotToken != "" {
			tg := notify.NewTelegramSink(a.cfg.TelegramBotToken, "", a.log)
			tg.Failed = func(error) { a.metrics.NotifyFailures.Inc() }
			sinks = append(sinks, tg)
		}
		a.sink = sinks
	})
	return a.execErr
}

func (a *app) reloadWallets() error {
	if a.keyring == nil {
		return nil
	}
	return a.keyring.Reload()
}

func (a *app) barrier() *fabric.Barrier {
	return fabric.NewBarrier(a.fabric, a.names, fabric.BarrierOptions{Logger: a.log})
}

// newWorker wires the executor of one shard to its fabric channel.
func (a *app) newWorker(shard int) (*snipe.Worker, error) {
	if err := a.openExecutorClients(); err != nil {
		return nil, err
	}
	exec, err := snipe.NewExecutor(snipe.ExecutorOptions{
		Shard:             shard,
		Orders:            a.orders,
		Guards:            a.guards,
		Pools:             a.pools,
		RPC:               a.rpc,
		Wallets:           a.wallets,
		Notify:            a.sink,
		Journal:           a.journal,
		Bundles:           a.bundles,
		TipAccount:        a.cfg.JitoTipAccount,
		TipLamports:       a.cfg.JitoTipLamports,
		SimulateTimeout:   a.cfg.SimulateTimeout,
		SendTimeout:       a.cfg.SendTimeout,
		BlockDelayTimeout: a.cfg.BlockDelayTimeout,
		Metrics:           a.metrics,
		Logger:            a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("executor shard %d: %w", shard, err)
	}
	return snipe.NewWorker(snipe.WorkerOptions{
		Shard:   shard,
		Fabric:  a.fabric,
		Names:   a.names,
		Handler: exec,
		Barrier: a.barrier(),
		Metrics: a.metrics,
		Logger:  a.log,
	}), nil
}

// detector owns the vault subscriptions and the dispatcher feeding the shards.
type detector struct {
	app        *app
	ws         solana.WSClient
	dispatcher *snipe.Dispatcher
	manager    *snipe.SubscriptionManager
	registry   *snipe.Registry
}

func (a *app) newDetector(ctx context.Context) (*detector, error) {
	wsCfg := solana.DefaultWSConfig()
	wsCfg.Logger = a.log
	ws, err := solana.NewWSClient(ctx, a.cfg.WSURL, &wsCfg)
	if err != nil {
		return nil, fmt.Errorf("connect websocket: %w", err)
	}
	return a.detectorWith(ws), nil
}

func (a *app) detectorWith(ws solana.WSClient) *detector {
	dispatcher := snipe.NewDispatcher(snipe.DispatcherOptions{
		Fabric:   a.fabric,
		Names:    a.names,
		Selector: snipe.NewSharedCounterSelector(a.fabric, a.names, a.cfg.Shards),
		Metrics:  a.metrics,
		Logger:   a.log,
	})
	return &detector{
		app:        a,
		ws:         ws,
		dispatcher: dispatcher,
		manager: snipe.NewSubscriptionManager(snipe.SubscriptionManagerOptions{
			Orders:   a.orders,
			Pools:    a.pools,
			WS:       ws,
			Handler:  dispatcher,
			Interval: a.cfg.PollInterval,
			Metrics:  a.metrics,
			Logger:   a.log,
		}),
		registry: snipe.NewRegistry(snipe.RegistryOptions{
			Orders: a.orders,
			Poker:  dispatcher,
			Logger: a.log,
		}),
	}
}

// Run waits until every shard is subscribed, then reconciles subscriptions
// until ctx is done. Checks published before the shards listen would be lost.
func (d *detector) Run(ctx context.Context) error {
	log := d.app.log.WithField("shards", d.app.cfg.Shards)
	log.Info("waiting for executor shards")
	if err := d.app.barrier().WaitForShards(ctx, d.app.cfg.Shards); err != nil {
		return err
	}
	log.Info("all shards ready, starting subscriptions")
	return d.manager.Run(ctx)
}

// Close drops subscriptions and the socket.
func (d *detector) Close() {
	d.manager.Close()
	_ = d.ws.Close()
}
