package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sensorfuse/internal/alerts"
	"sensorfuse/internal/api"
	"sensorfuse/internal/config"
	"sensorfuse/internal/engine"
	"sensorfuse/internal/ingest"
	"sensorfuse/internal/logging"
	"sensorfuse/internal/model"
	"sensorfuse/internal/status"
	"sensorfuse/internal/storage"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	path := config.ResolvePath(*configPath)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path, config.DefaultConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "config: write default: %v\n", err)
			os.Exit(1)
		}
	}
	manager, err := config.NewManager(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg := manager.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("sensorfused starting", "version", version, "config", path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statusStore := status.NewStore(cfg.Status.StoreLimit)
	alertsStore := alerts.NewStore(cfg.Alerts.StoreLimit)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	if store != nil {
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = store.Init(initCtx)
		cancel()
		if err != nil {
			logger.Error("storage schema init failed", "err", err)
			os.Exit(1)
		}
		defer store.Close()
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	eng := engine.NewEngine(cfg, logger, statusStore, alertsStore, store)

	batches := make(chan model.ReadingBatch, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, batches)

	dedupe := ingest.NewDedupeCache()
	ingest.StartREST(ctx, manager, dedupe, batches, logger)
	ingest.StartKafka(ctx, manager, dedupe, batches, logger)

	api.Start(ctx, manager, statusStore, alertsStore, eng, logger, version)

	go manager.Watch(10*time.Second,
		func(next *config.Config) {
			logger.Info("config reloaded", "path", path)
			eng.UpdateConfig(next)
		},
		func(err error) {
			logger.Warn("config reload failed", "err", err)
		},
		ctx.Done())

	<-ctx.Done()
	logger.Info("sensorfused stopping")
}
