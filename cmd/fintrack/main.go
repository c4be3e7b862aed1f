package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

func main() {
	cfg, logger := cli.Init(log.ComponentApp)

	components, err := cli.NewComponents(cfg)
	if err != nil {
		logger.Error("Failed to configure engines", "error", err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := cli.InitAMQP(logger, cfg)
	if err != nil {
		// Merges still run without notifications
		logger.Warn("AMQP unavailable, merge notifications disabled", "error", err)
	}
	var publisher services.MergePublisher
	if amqpClient != nil {
		defer amqpClient.Close()
		publisher = amqpClient
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	caches := cache.NewManager()
	brandCache := cli.NewBrandCache(cfg, caches)
	caches.StartCleanup(ctx, 5*time.Minute)
	defer caches.Stop()

	analytics := components.NewAnalytics(repo)
	ingestion := services.NewIngestionService(repo, repo, components.Resolver, brandCache)
	dedup := services.NewDedupService(repo, components.Resolver, publisher)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Analytics:  analytics,
		Resolver:   ingestion,
		Dedup:      dedup,
		DB:         repo,
		BrandCache: brandCache,
		Logger:     logger.WithComponent(log.ComponentHTTP),
	})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting fintrack server",
		"port", cfg.Port,
		"financial_month_start_day", cfg.FinancialMonthStartDay,
		"amqp", publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-stopped
	logger.Info("Server stopped gracefully")
}
