// Package cli holds the start-up steps shared by the fintrack binaries.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/calendar"
	"fintrack/internal/config"
	"fintrack/internal/forecast"
	"fintrack/internal/log"
	"fintrack/internal/merchant"
	"fintrack/internal/services"
	"fintrack/internal/storage"
	"fintrack/internal/subscription"

	"github.com/joho/godotenv"
)

// Init loads .env for local development, reads the configuration and sets up
// the default logger for component. It exits the process when the
// configuration is invalid.
func Init(component string) (*config.Config, *log.Logger) {
	// Ignore errors: .env is optional in production/docker
	_ = godotenv.Load()

	cfg := config.Load()
	level, err := config.ParseLevel(cfg.LogLevel)
	logger := log.Setup(component, level)
	if err != nil {
		logger.Warn("Invalid log level, using info", "level", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

// InitSQLite opens the repository, running migrations. It exits the process
// on failure.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// InitAMQP connects to the broker. It returns nil without error when no
// AMQP URL is configured.
func InitAMQP(logger *log.Logger, cfg *config.Config) (*amqp.Client, error) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - no AMQP_URL provided")
		return nil, nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return nil, fmt.Errorf("connect to AMQP: %w", err)
	}
	logger.Info("AMQP client connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client, nil
}

// Components are the pure engines configured from cfg.
type Components struct {
	Calendar  calendar.Calendar
	Resolver  *merchant.Resolver
	Detector  *subscription.Detector
	Engine    *forecast.Engine
	Analytics services.AnalyticsConfig
}

func NewComponents(cfg *config.Config) (Components, error) {
	cal, err := calendar.New(cfg.FinancialMonthStartDay)
	if err != nil {
		return Components{}, fmt.Errorf("financial calendar: %w", err)
	}
	detCfg := subscription.DefaultConfig()
	detCfg.MinConfidence = cfg.SubscriptionMinConfidence

	analytics := services.DefaultAnalyticsConfig()
	analytics.LookbackMonths = cfg.SubscriptionLookbackMonths
	analytics.HistoryMonths = cfg.ForecastHistoryMonths

	return Components{
		Calendar:  cal,
		Resolver:  merchant.NewResolver(merchant.WithMatchThreshold(cfg.MerchantMatchThreshold)),
		Detector:  subscription.NewDetector(detCfg),
		Engine:    forecast.NewEngine(forecast.DefaultParams()),
		Analytics: analytics,
	}, nil
}

// NewAnalytics wires the analytics service over repo.
func (c Components) NewAnalytics(repo *storage.SQLiteRepository) *services.AnalyticsService {
	return services.NewAnalyticsService(repo, repo, c.Calendar, c.Detector, c.Engine, c.Analytics)
}

// NewBrandCache returns the brand extraction cache registered with manager.
// A zero RESOLVER_CACHE_SIZE yields a cache that stores nothing.
func NewBrandCache(cfg *config.Config, manager *cache.Manager) *cache.LRUCache[services.BrandExtraction] {
	c := cache.NewLRUCache[services.BrandExtraction](cfg.ResolverCacheSize, cfg.ResolverCacheTTL)
	if manager != nil {
		manager.Register(c)
	}
	return c
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
