package main

import (
	"context"
	"flag"
	"os"

	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/worker"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "print the merge plans without applying them")
	flag.Parse()

	cfg, logger := cli.Init(log.ComponentDedup)
	logger.Info("Starting merchant-dedup", "dry_run", *dryRun, "interval", cfg.DedupInterval.String())

	components, err := cli.NewComponents(cfg)
	if err != nil {
		logger.Error("Failed to configure engines", "error", err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var publisher services.MergePublisher
	if !*dryRun {
		amqpClient, err := cli.InitAMQP(logger, cfg)
		if err != nil {
			logger.Warn("AMQP unavailable, merge notifications disabled", "error", err)
		}
		if amqpClient != nil {
			defer amqpClient.Close()
			publisher = amqpClient
		}
	}

	dedup := services.NewDedupService(repo, components.Resolver, publisher)
	run := func(ctx context.Context) error {
		report, err := dedup.Run(ctx, *dryRun)
		if err != nil {
			return err
		}
		for _, p := range report.Plans {
			logger.InfoContext(ctx, "Merge plan",
				"brand", p.Brand,
				"survivor_id", p.SurvivorID,
				"duplicates", len(p.DuplicateIDs))
		}
		logger.InfoContext(ctx, "Deduplication finished",
			"dry_run", report.DryRun,
			"scanned", report.Scanned,
			"plans", len(report.Plans),
			"removed", report.Removed)
		return nil
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	// One-shot unless a dedup interval is configured
	if cfg.DedupInterval == 0 || *dryRun {
		if err := run(ctx); err != nil {
			logger.Error("Deduplication failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := worker.Every(ctx, "merchant-dedup", cfg.DedupInterval, run); err != nil && ctx.Err() == nil {
		logger.Error("Deduplication loop stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Merchant dedup shutdown complete")
}
