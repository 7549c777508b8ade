// =================================
// File: cmd/engine/main.go
// =================================
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/memeflow/copytrade/internal/authority"
	"github.com/memeflow/copytrade/internal/chain"
	"github.com/memeflow/copytrade/internal/config"
	"github.com/memeflow/copytrade/internal/engine"
	"github.com/memeflow/copytrade/internal/events"
	"github.com/memeflow/copytrade/internal/logger"
	"github.com/memeflow/copytrade/internal/metrics"
	"github.com/memeflow/copytrade/internal/shutdown"
	"github.com/memeflow/copytrade/internal/storage"
	"github.com/memeflow/copytrade/internal/storage/memory"
	"github.com/memeflow/copytrade/internal/storage/postgres"
	"github.com/memeflow/copytrade/internal/wallet"
)

const (
	busWorkers      = 2
	retryMaxElapsed = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", "", "Path to config file (yaml/json/toml)")
	pflag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	executor, err := wallet.Load(cfg.ExecutorKey)
	if err != nil {
		return fmt.Errorf("load executor key: %w", err)
	}
	log.Info("Starting settlement engine",
		zap.String("rpc", cfg.RPCURL),
		zap.String("program", cfg.ProgramID),
		zap.String("executor", logger.ShortenAddress(executor.String())),
		zap.String("storage", cfg.Storage.Driver),
		zap.Int("workers", cfg.Engine.Workers))

	closer := shutdown.New(log)
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := closer.Shutdown(sctx); err != nil {
			log.Error("Shutdown completed with errors", zap.Error(err))
		}
	}()

	store, err := openStore(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	closer.AddCloser("store", func() error { store.Close(); return nil })

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	bus := events.NewBus(log, cfg.Engine.QueueSize, busWorkers)
	bus.Subscribe(events.AllEvents, events.HandlerFunc(collector.HandleEvent))

	if cfg.Audit.CSVPath != "" {
		audit, err := engine.NewAuditLog(cfg.Audit.CSVPath, cfg.Audit.FlushInterval, log)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		closer.AddCloser("audit", audit.Close)
		bus.Subscribe(events.CommissionDistributed, events.HandlerFunc(audit.HandleEvent))
	}
	closer.Add("event bus", bus.Shutdown)

	if cfg.Metrics.Enabled {
		srv, err := serveMetrics(cfg.Metrics.Addr, registry, log)
		if err != nil {
			return err
		}
		closer.Add("metrics server", srv.Shutdown)
	}

	client := authority.NewClient(cfg.Program(), chain.NewClient(cfg.RPCURL, log), log,
		authority.WithRetry(cfg.Engine.RetryInterval, uint(cfg.Engine.Retries), retryMaxElapsed))

	eng := engine.New(engine.Config{
		Workers:        cfg.Engine.Workers,
		MaxUplineDepth: cfg.Engine.MaxUplineDepth,
		QuoteDecimals:  cfg.Engine.QuoteDecimals,
	}, client, executor, store, bus, collector, log)

	src, err := openTrades(cfg.Engine.TradesFile)
	if err != nil {
		return err
	}
	defer src.Close()

	trades := make(chan *engine.TradeClosed, cfg.Engine.QueueSize)
	go func() {
		defer close(trades)
		if err := engine.ReadTrades(ctx, src, trades, log); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Trade source failed", zap.Error(err))
		}
	}()

	err = eng.Run(ctx, trades)
	if errors.Is(err, context.Canceled) {
		log.Info("Shutdown signal received")
		return nil
	}
	if err == nil {
		log.Info("Trade source exhausted")
	}
	return err
}

func openStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "postgres":
		store, err := postgres.Open(ctx, cfg.PostgresURL, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		log.Warn("Using in-memory storage, settlements are lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func openTrades(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trades file: %w", err)
	}
	return f, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, log *zap.Logger) (*http.Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("Metrics server listening", zap.String("addr", listener.Addr().String()))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv, nil
}
