// Package main runs the token-launch watcher: signature polling,
// transaction classification, token lifecycle tracking and alerting
// for one monitored program.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"launchwatch/internal/alert"
	"launchwatch/internal/classify"
	"launchwatch/internal/config"
	"launchwatch/internal/domain"
	"launchwatch/internal/lifecycle"
	"launchwatch/internal/metadata"
	"launchwatch/internal/monitor"
	"launchwatch/internal/observability"
	"launchwatch/internal/poller"
	"launchwatch/internal/pricefeed"
	"launchwatch/internal/solana"
	"launchwatch/internal/storage"
	chstore "launchwatch/internal/storage/clickhouse"
	"launchwatch/internal/storage/memory"
	pgstore "launchwatch/internal/storage/postgres"
	redisstore "launchwatch/internal/storage/redis"
)

// watcherStores holds all storage implementations.
type watcherStores struct {
	tokens      storage.TokenStore
	events      storage.EventStore
	series      storage.MetricTimeseriesStore
	checkpoints storage.CheckpointStore
	alerts      storage.AlertStore
	seen        storage.SeenStore
}

func main() {
	envPath := flag.String("env", ".env", "Path to .env file (missing file is ignored)")
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*envPath)
	if err != nil {
		logger.Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	endpoints := make([]solana.Endpoint, 0, len(cfg.Endpoints()))
	for i, url := range cfg.Endpoints() {
		endpoints = append(endpoints, solana.Endpoint{URL: url, Private: i == 0})
	}
	gateway, err := solana.NewGateway(solana.GatewayOptions{
		Endpoints:        endpoints,
		BulkProbeProgram: cfg.Program,
		Logger:           logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create gateway: %v", err)
	}
	if err := gateway.Initialize(ctx); err != nil {
		logger.Fatalf("Failed to connect to any RPC endpoint: %v", err)
	}
	logger.Printf("Connected to RPC endpoint %s", gateway.Status().Endpoint)

	p, err := poller.New(gateway, stores.seen, stores.checkpoints, poller.Options{
		Program:   cfg.Program,
		PageLimit: cfg.PageLimit,
		Retention: cfg.SeenRetention,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create poller: %v", err)
	}

	notifiers := []alert.Notifier{alert.NewLogNotifier(logger)}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewWebhookNotifier(cfg.WebhookURL, nil))
	}
	dispatcher := alert.NewDispatcher(alert.Options{
		Store:     stores.alerts,
		Notifiers: notifiers,
		Logger:    logger,
	})
	defer dispatcher.Close()

	quoter := pricefeed.NewBinanceQuoter(0)

	manager, err := lifecycle.NewManager(stores.tokens, stores.series, stores.events, meteredSink{dispatcher}, lifecycle.Config{
		AlertThreshold:  cfg.AlertThreshold,
		Graduation:      lifecycle.GraduationRule(cfg.GraduationRule),
		VolumeBandLower: cfg.VolumeBandLower,
		VolumeBandUpper: cfg.VolumeBandUpper,
		GraduationScore: cfg.GraduationScore,
		StaleAfter:      cfg.StaleAfter,
		Quoter:          quoter,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create lifecycle manager: %v", err)
	}

	var logs solana.LogStream
	if cfg.WSEndpoint != "" {
		stream, wsErr := solana.NewWSLogStream(ctx, cfg.WSEndpoint, nil, logger)
		if wsErr != nil {
			logger.Printf("WebSocket unavailable, relying on polling only: %v", wsErr)
		} else {
			logs = stream
			defer stream.Close()
		}
	}

	runner, err := monitor.NewRunner(monitor.Options{
		RPC:             gateway,
		Poller:          p,
		Classifier:      classify.NewClassifier(),
		Lifecycle:       manager,
		Tokens:          stores.tokens,
		Metadata:        metadata.NewFetcher(gateway),
		Quoter:          quoter,
		Logs:            logs,
		Program:         cfg.Program,
		PollInterval:    cfg.PollInterval,
		RefreshInterval: cfg.RefreshInterval,
		SweepInterval:   cfg.SweepInterval,
		FetchWorkers:    cfg.FetchWorkers,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create runner: %v", err)
	}

	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	go startHTTPServer(cfg.MetricsAddr, gateway, p, logger)

	err = runner.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Runner error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// meteredSink counts dispatched alerts on the way to the dispatcher.
type meteredSink struct {
	dispatcher *alert.Dispatcher
}

func (s meteredSink) Dispatch(ctx context.Context, a *domain.Alert) {
	observability.RecordAlertDispatched(string(a.Type))
	s.dispatcher.Dispatch(ctx, a)
}

// createStores creates all required stores per the configured backend.
func createStores(ctx context.Context, cfg *config.Config) (*watcherStores, func(), error) {
	stores := &watcherStores{
		tokens:      memory.NewTokenStore(),
		events:      memory.NewEventStore(),
		series:      memory.NewMetricTimeseriesStore(),
		checkpoints: memory.NewCheckpointStore(),
		alerts:      memory.NewAlertStore(),
		seen:        memory.NewSeenStore(),
	}
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.StorageBackend == "postgres" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		if err := pgstore.RunMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		stores.tokens = pgstore.NewTokenStore(pool)
		stores.checkpoints = pgstore.NewCheckpointStore(pool)
		stores.alerts = pgstore.NewAlertStore(pool)
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := chstore.Setup(ctx, cfg.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		cleanups = append(cleanups, func() { conn.Close() })
		stores.series = chstore.NewMetricTimeseriesStore(conn)
		stores.events = chstore.NewEventStore(conn)
	}

	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		cleanups = append(cleanups, func() { client.Close() })
		stores.seen = redisstore.NewSeenStore(client, "", cfg.SeenRetention)
	}

	return stores, cleanup, nil
}

// startHTTPServer serves health, metrics and status endpoints.
func startHTTPServer(addr string, gateway *solana.Gateway, p *poller.Poller, logger *log.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		slot, sig := p.HighWaterMark()
		status := gateway.Status()
		resp := map[string]interface{}{
			"status":         "running",
			"endpoint":       status.Endpoint,
			"fallbacks":      status.Fallbacks,
			"high_water":     slot,
			"last_signature": sig,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("HTTP server error: %v", err)
	}
}
