package sheets

import (
	"context"
	"time"

	"fintrack/internal/calendar"
	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// ForecastWriter replaces the forecast report of one financial month.
	ForecastWriter interface {
		WriteForecast(ctx context.Context, period calendar.Period, f core.MonthlyForecast) error
	}

	// SubscriptionWriter replaces the list of detected subscriptions.
	SubscriptionWriter interface {
		WriteSubscriptions(ctx context.Context, asOf time.Time, subs []core.DetectedSubscription) error
	}

	ReportExporter interface {
		ForecastWriter
		SubscriptionWriter
	}

	// BudgetReader returns categories with their monthly budgets as kept in
	// an external sheet.
	BudgetReader interface {
		ReadBudgets(ctx context.Context) ([]core.Category, error)
	}
)
