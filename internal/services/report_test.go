package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/calendar"
	"fintrack/internal/core"
)

type fakeExporter struct {
	period   calendar.Period
	forecast *core.MonthlyForecast
	asOf     time.Time
	subs     []core.DetectedSubscription
	err      error
}

func (e *fakeExporter) WriteForecast(ctx context.Context, period calendar.Period, f core.MonthlyForecast) error {
	e.period, e.forecast = period, &f
	return e.err
}

func (e *fakeExporter) WriteSubscriptions(ctx context.Context, asOf time.Time, subs []core.DetectedSubscription) error {
	e.asOf, e.subs = asOf, subs
	return nil
}

type fakeBudgets struct {
	cats []core.Category
	err  error
}

func (b fakeBudgets) ReadBudgets(ctx context.Context) ([]core.Category, error) {
	return b.cats, b.err
}

func TestReportService_Export(t *testing.T) {
	store := forecastFixture()
	exp := &fakeExporter{}
	svc := NewReportService(newAnalytics(store, 1), store, exp, nil)
	asOf := core.NewDate(2024, time.March, 15)

	if err := svc.Export(context.Background(), asOf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if exp.forecast == nil || len(exp.forecast.Categories) != 3 {
		t.Fatalf("exported forecast = %+v", exp.forecast)
	}
	if want := core.NewDate(2024, time.March, 1); !exp.period.Start.Equal(want) {
		t.Errorf("exported period start = %v, want %v", exp.period.Start, want)
	}
	if !exp.asOf.Equal(asOf) || exp.subs == nil {
		t.Errorf("exported subscriptions as of %v = %v", exp.asOf, exp.subs)
	}
}

func TestReportService_ExportError(t *testing.T) {
	store := forecastFixture()
	boom := errors.New("quota exceeded")
	svc := NewReportService(newAnalytics(store, 1), store, &fakeExporter{err: boom}, nil)

	if err := svc.Export(context.Background(), core.NewDate(2024, time.March, 15)); !errors.Is(err, boom) {
		t.Errorf("Export() error = %v, want %v", err, boom)
	}
}

func TestReportService_ImportBudgets(t *testing.T) {
	store := newFakeStore()
	store.categories = []core.Category{{ID: "food", Name: "Food"}}
	budgets := fakeBudgets{cats: []core.Category{
		{ID: "food", Name: "Food", Budget: decPtr("450")},
		{ID: "fun", Name: "Fun", Budget: decPtr("120")},
	}}
	svc := NewReportService(nil, store, &fakeExporter{}, budgets)

	n, err := svc.ImportBudgets(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("ImportBudgets() = %d, %v; want 2, nil", n, err)
	}
	if len(store.categories) != 2 || store.categories[0].Budget == nil || store.categories[0].Budget.String() != "450" {
		t.Errorf("categories = %+v", store.categories)
	}

	none := NewReportService(nil, store, &fakeExporter{}, nil)
	if n, err := none.ImportBudgets(context.Background()); n != 0 || err != nil {
		t.Errorf("ImportBudgets() without reader = %d, %v", n, err)
	}

	failing := NewReportService(nil, store, &fakeExporter{}, fakeBudgets{err: boomErr})
	if _, err := failing.ImportBudgets(context.Background()); !errors.Is(err, boomErr) {
		t.Errorf("ImportBudgets() error = %v, want %v", err, boomErr)
	}
}

var boomErr = errors.New("sheet not found")
