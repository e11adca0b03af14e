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

	"github.com/sirupsen/logrus"

	"moonshot-watcher/internal/config"
	"moonshot-watcher/internal/dispatch"
	"moonshot-watcher/internal/history"
	"moonshot-watcher/internal/logging"
	"moonshot-watcher/internal/metadata"
	"moonshot-watcher/internal/notify"
	"moonshot-watcher/internal/observability"
	"moonshot-watcher/internal/solana"
	"moonshot-watcher/internal/storage"
	"moonshot-watcher/internal/storage/memory"
	"moonshot-watcher/internal/storage/migrations"
	pgstore "moonshot-watcher/internal/storage/postgres"
	redisstore "moonshot-watcher/internal/storage/redis"
	"moonshot-watcher/internal/stream"
)

// shutdownTimeout bounds the wait for in-flight enrichments after the stream ends.
const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	envFile := flag.String("env-file", ".env", "Path to .env file (missing file is ignored)")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watcher: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watcher: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("watcher failed")
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	// Start metrics server if enabled
	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals; a second signal forces exit
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Info("received signal, shutting down")
			cancel()
		case <-ctx.Done():
			return
		}
		if sig, ok := <-sigCh; ok {
			logger.WithField("signal", sig.String()).Warn("received second signal, forcing exit")
			os.Exit(1)
		}
	}()

	origins, closeStore, err := openOriginStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, closeNotifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	rpc := solana.NewHTTPClient(cfg.RPC.URL,
		solana.WithTimeout(cfg.RPC.Timeout),
		solana.WithMaxRetries(cfg.RPC.MaxRetries),
	)

	resolverOpts := []history.Option{
		history.WithConcurrency(cfg.Enrichment.HistoryConcurrency),
		history.WithLogger(logger.WithField("component", "history")),
	}
	if origins != nil {
		resolverOpts = append(resolverOpts, history.WithOriginStore(origins))
	}
	resolver := history.New(rpc, metadata.NewOnChainReader(rpc), resolverOpts...)

	offchain := metadata.NewOffChainFetcher(metadata.WithTimeout(cfg.Enrichment.OffChainTimeout))
	dispatcher := dispatch.New(offchain, resolver, notifier, logger.WithField("component", "dispatch"))

	wsCfg := solana.DefaultWSConfig()
	wsCfg.ReconnectDelay = cfg.WS.ReconnectDelay
	wsCfg.MaxReconnectDelay = cfg.WS.MaxReconnectDelay
	wsCfg.MaxReconnects = cfg.WS.MaxReconnects
	wsCfg.PingInterval = cfg.WS.PingInterval
	wsCfg.ReadTimeout = cfg.WS.ReadTimeout

	ws, err := solana.NewWSClient(ctx, cfg.WS.URL, &wsCfg, logger)
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}
	defer ws.Close()

	driver := stream.New(ws, solana.WatchedProgramID, dispatcher, logger.WithField("component", "stream"))
	runErr := driver.Run(ctx)

	waitForEnrichment(dispatcher, logger)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func serveMetrics(addr string, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	logger.WithField("addr", addr).Info("starting metrics server")
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("metrics server error")
	}
}

// openOriginStore connects the configured mint-origin cache.
// A nil store means caching is disabled.
func openOriginStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (storage.MintOriginStore, func(), error) {
	noop := func() {}

	switch cfg.Cache.Backend {
	case config.CacheNone:
		return nil, noop, nil
	case config.CachePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Cache.PostgresDSN,
			pgstore.WithMaxConns(int32(cfg.Enrichment.HistoryConcurrency)+1))
		if err != nil {
			return nil, noop, fmt.Errorf("connect postgres: %w", err)
		}
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("run postgres migrations: %w", err)
		}
		logger.WithField("applied", applied).Info("mint origin cache: postgres")
		return pgstore.NewMintOriginStore(pool), pool.Close, nil
	case config.CacheRedis:
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:      cfg.Cache.RedisAddr,
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.RedisKeyPrefix,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("mint origin cache: redis")
		return redisstore.NewMintOriginStore(client), func() { _ = client.Close() }, nil
	default:
		logger.Info("mint origin cache: memory")
		return memory.NewMintOriginStore(), noop, nil
	}
}

// buildNotifier assembles the configured sinks.
func buildNotifier(cfg *config.Config, logger *logrus.Logger) (*notify.Multi, func(), error) {
	var (
		sinks   []notify.Notifier
		closers []func()
	)

	if cfg.Webhook.URL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.Webhook.URL, notify.WithWebhookTimeout(cfg.Webhook.Timeout)))
	}

	if cfg.NATS.URL != "" {
		natsCfg := notify.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Subject = cfg.NATS.Subject
		natsCfg.PublishTimeout = cfg.NATS.PublishTimeout

		n, err := notify.NewNATS(natsCfg)
		if err != nil {
			return nil, func() {}, err
		}
		sinks = append(sinks, n)
		closers = append(closers, n.Close)
	}

	m := notify.NewMulti(sinks...)
	logger.WithField("sinks", m.Len()).Info("notifiers configured")

	return m, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func waitForEnrichment(d *dispatch.Dispatcher, logger *logrus.Logger) {
	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("timed out waiting for in-flight enrichments")
	}
}
