package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/sheets"
)

// ReportService pushes analytics to an external report and pulls budgets
// back from it.
type ReportService struct {
	analytics  *AnalyticsService
	categories CategoryStore
	exporter   sheets.ReportExporter
	budgets    sheets.BudgetReader
}

// NewReportService wires the service. budgets may be nil when budgets are
// managed elsewhere.
func NewReportService(analytics *AnalyticsService, categories CategoryStore, exporter sheets.ReportExporter, budgets sheets.BudgetReader) *ReportService {
	return &ReportService{
		analytics:  analytics,
		categories: categories,
		exporter:   exporter,
		budgets:    budgets,
	}
}

// Export computes the forecast and the detected subscriptions as of asOf
// and writes both reports concurrently.
func (s *ReportService) Export(ctx context.Context, asOf time.Time) error {
	var (
		fr  ForecastReport
		sub SubscriptionReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fr, err = s.analytics.Forecast(gctx, asOf)
		return err
	})
	g.Go(func() error {
		var err error
		sub, err = s.analytics.Subscriptions(gctx, asOf)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("compute reports: %w", err)
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.exporter.WriteForecast(gctx, fr.Period.Period, fr.Forecast); err != nil {
			return fmt.Errorf("write forecast: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.exporter.WriteSubscriptions(gctx, sub.AsOf, sub.Subscriptions); err != nil {
			return fmt.Errorf("write subscriptions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Reports exported",
		"period", fr.Period.Label,
		"categories", len(fr.Forecast.Categories),
		"subscriptions", len(sub.Subscriptions))
	return nil
}

// ImportBudgets copies categories and budgets from the budget reader into
// storage. It returns the number of categories written.
func (s *ReportService) ImportBudgets(ctx context.Context) (int, error) {
	if s.budgets == nil {
		return 0, nil
	}
	cats, err := s.budgets.ReadBudgets(ctx)
	if err != nil {
		return 0, fmt.Errorf("read budgets: %w", err)
	}
	for i, c := range cats {
		if err := s.categories.UpsertCategory(ctx, c); err != nil {
			return i, fmt.Errorf("store category %s: %w", c.ID, err)
		}
	}
	slog.InfoContext(ctx, "Budgets imported", "categories", len(cats))
	return len(cats), nil
}
