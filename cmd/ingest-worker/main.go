package main

import (
	"os"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/worker"
)

func main() {
	cfg, logger := cli.Init(log.ComponentWorker)
	logger.Info("Starting ingest-worker")

	components, err := cli.NewComponents(cfg)
	if err != nil {
		logger.Error("Failed to configure engines", "error", err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := cli.InitAMQP(logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	// Without a broker the worker only sweeps pending transactions
	var consumer worker.Consumer
	if amqpClient != nil {
		defer amqpClient.Close()
		consumer = amqpClient
	} else {
		logger.Info("Skipping AMQP message consumption - sweeping pending transactions only")
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	caches := cache.NewManager()
	brandCache := cli.NewBrandCache(cfg, caches)
	caches.StartCleanup(ctx, 5*time.Minute)
	defer caches.Stop()

	ingestion := services.NewIngestionService(repo, repo, components.Resolver, brandCache)
	w := worker.NewIngestWorker(ingestion, cfg.PendingBatchSize, cfg.PendingInterval)

	logger.Info("Ingest worker running",
		"batch_size", cfg.PendingBatchSize,
		"sweep_interval", cfg.PendingInterval.String())
	if err := w.Run(ctx, consumer); err != nil {
		logger.Error("Ingest worker stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
