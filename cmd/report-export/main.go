package main

import (
	"context"
	"flag"
	"os"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
	ports "fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	mem "fintrack/internal/sheets/memory"
)

const dateLayout = "2006-01-02"

func main() {
	date := flag.String("date", "", "report date as YYYY-MM-DD (default: today)")
	importBudgets := flag.Bool("import-budgets", false, "import category budgets before exporting")
	seedDir := flag.String("seed-dir", "data", "budget seed directory used when no spreadsheet is configured")
	flag.Parse()

	cfg, logger := cli.Init(log.ComponentSheets)

	asOf := core.DateOf(time.Now())
	if *date != "" {
		d, err := time.Parse(dateLayout, *date)
		if err != nil {
			logger.Error("Invalid -date, want YYYY-MM-DD", "date", *date, "error", err)
			os.Exit(1)
		}
		asOf = d
	}

	components, err := cli.NewComponents(cfg)
	if err != nil {
		logger.Error("Failed to configure engines", "error", err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, 2*time.Minute)
	defer timeoutCancel()

	var (
		exporter ports.ReportExporter
		budgets  ports.BudgetReader
		store    *mem.Store
	)
	if cfg.GoogleSpreadsheetID != "" {
		if err := cfg.ValidateSheets(); err != nil {
			logger.Error("Sheets configuration invalid", "error", err)
			os.Exit(1)
		}
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			ForecastSheet:      cfg.GoogleForecastSheet,
			SubscriptionsSheet: cfg.GoogleSubscriptionsSheet,
			BudgetsSheet:       cfg.GoogleBudgetsSheet,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		exporter, budgets = client, client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		store = mem.NewFromFiles(*seedDir)
		exporter, budgets = store, store
		logger.Info("No GOOGLE_SPREADSHEET_ID provided, exporting to memory", "seed_dir", *seedDir)
	}

	report := services.NewReportService(components.NewAnalytics(repo), repo, exporter, budgets)

	if *importBudgets {
		n, err := report.ImportBudgets(ctx)
		if err != nil {
			logger.Error("Budget import failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Budgets imported", "categories", n)
	}

	if err := report.Export(ctx, asOf); err != nil {
		logger.Error("Report export failed", "error", err, "date", asOf.Format(dateLayout))
		os.Exit(1)
	}

	if store != nil {
		if p, f, ok := store.Forecast(); ok {
			logger.Info("Forecast",
				"period", p.Label,
				"spent", f.TotalSpent.StringFixed(2),
				"projected", f.TotalProjected.StringFixed(2),
				"savings", f.ProjectedSavings.StringFixed(2),
				"alerts", len(f.Alerts))
		}
		_, subs := store.Subscriptions()
		logger.Info("Subscriptions", "count", len(subs))
	}
	logger.Info("Report exported", "date", asOf.Format(dateLayout))
}
