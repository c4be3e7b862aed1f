package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/calendar"
	"fintrack/internal/core"
	"fintrack/internal/forecast"
	"fintrack/internal/subscription"
)

// UncategorizedID buckets spending without a category in forecasts.
const (
	UncategorizedID   = "uncategorized"
	UncategorizedName = "Uncategorized"
)

type AnalyticsConfig struct {
	// LookbackMonths is how many financial months, the current one
	// included, subscription detection looks at.
	LookbackMonths int
	// HistoryMonths is how many complete months feed the historical
	// average of a forecast.
	HistoryMonths int
}

func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{LookbackMonths: 13, HistoryMonths: 3}
}

// PeriodInfo is the financial month containing a date and the position of
// the date inside it.
type PeriodInfo struct {
	calendar.Period
	DayOfMonth  int
	DaysInMonth int
}

// SubscriptionReport lists the subscriptions detected as of a date.
type SubscriptionReport struct {
	AsOf          time.Time
	From          time.Time
	Subscriptions []core.DetectedSubscription
	MonthlyTotal  decimal.Decimal
}

// ForecastReport is a forecast together with the month it covers.
type ForecastReport struct {
	Period   PeriodInfo
	Forecast core.MonthlyForecast
}

// AnalyticsService feeds stored transactions to the calendar, subscription
// detector and forecast engine.
type AnalyticsService struct {
	transactions TransactionStore
	categories   CategoryStore
	calendar     calendar.Calendar
	detector     *subscription.Detector
	engine       *forecast.Engine
	cfg          AnalyticsConfig
}

func NewAnalyticsService(
	transactions TransactionStore,
	categories CategoryStore,
	cal calendar.Calendar,
	detector *subscription.Detector,
	engine *forecast.Engine,
	cfg AnalyticsConfig,
) *AnalyticsService {
	return &AnalyticsService{
		transactions: transactions,
		categories:   categories,
		calendar:     cal,
		detector:     detector,
		engine:       engine,
		cfg:          cfg,
	}
}

func (s *AnalyticsService) Calendar() calendar.Calendar {
	return s.calendar
}

// Period returns the financial month containing date.
func (s *AnalyticsService) Period(date time.Time) (PeriodInfo, error) {
	p, err := s.calendar.Period(date)
	if err != nil {
		return PeriodInfo{}, fmt.Errorf("financial period: %w", err)
	}
	day, err := s.calendar.DayOfMonth(date)
	if err != nil {
		return PeriodInfo{}, fmt.Errorf("financial day: %w", err)
	}
	return PeriodInfo{Period: p, DayOfMonth: day, DaysInMonth: p.Days()}, nil
}

// Subscriptions detects recurring payments among the transactions of the
// lookback window ending at asOf.
func (s *AnalyticsService) Subscriptions(ctx context.Context, asOf time.Time) (SubscriptionReport, error) {
	from, err := s.lookbackStart(asOf)
	if err != nil {
		return SubscriptionReport{}, err
	}

	var (
		txs   []core.Transaction
		names map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.transactions.ListTransactions(gctx, from, asOf)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		cats, err := s.categories.ListCategories(gctx)
		if err != nil {
			return fmt.Errorf("load categories: %w", err)
		}
		names = categoryNames(cats)
		return nil
	})
	if err := g.Wait(); err != nil {
		return SubscriptionReport{}, err
	}

	subs := s.detector.Detect(txs, names)
	if subs == nil {
		subs = []core.DetectedSubscription{}
	}
	return SubscriptionReport{
		AsOf:          core.DateOf(asOf),
		From:          from,
		Subscriptions: subs,
		MonthlyTotal:  subscription.MonthlyTotal(subs),
	}, nil
}

func (s *AnalyticsService) lookbackStart(asOf time.Time) (time.Time, error) {
	current, err := s.calendar.Period(asOf)
	if err != nil {
		return time.Time{}, fmt.Errorf("financial period: %w", err)
	}
	if s.cfg.LookbackMonths <= 1 {
		return current.Start, nil
	}
	prev, err := s.calendar.Previous(asOf, s.cfg.LookbackMonths-1)
	if err != nil {
		return time.Time{}, fmt.Errorf("lookback periods: %w", err)
	}
	return prev[0].Start, nil
}

// Forecast projects the financial month containing asOf from the spending
// recorded up to asOf, the previous month and the trailing history.
func (s *AnalyticsService) Forecast(ctx context.Context, asOf time.Time) (ForecastReport, error) {
	info, err := s.Period(asOf)
	if err != nil {
		return ForecastReport{}, err
	}
	history, err := s.calendar.Previous(asOf, s.cfg.HistoryMonths)
	if err != nil {
		return ForecastReport{}, fmt.Errorf("history periods: %w", err)
	}

	var (
		current []core.Transaction
		past    []core.Transaction
		cats    []core.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.transactions.ListTransactions(gctx, info.Start, asOf)
		if err != nil {
			return fmt.Errorf("load current month: %w", err)
		}
		return nil
	})
	if len(history) > 0 {
		g.Go(func() error {
			var err error
			past, err = s.transactions.ListTransactions(gctx, history[0].Start, history[len(history)-1].End)
			if err != nil {
				return fmt.Errorf("load history: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		var err error
		cats, err = s.categories.ListCategories(gctx)
		if err != nil {
			return fmt.Errorf("load categories: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return ForecastReport{}, err
	}

	in := BuildForecastInput(info, current, past, history, cats)
	return ForecastReport{Period: info, Forecast: s.engine.Forecast(in)}, nil
}

// BuildForecastInput aggregates transactions into per-category spending.
// past must cover the history periods, oldest first; the last one is the
// previous month. Categories appear when they have a budget or any
// spending in the current month or the history.
func BuildForecastInput(info PeriodInfo, current, past []core.Transaction, history []calendar.Period, cats []core.Category) forecast.Input {
	in := forecast.Input{
		DayOfMonth:  info.DayOfMonth,
		DaysInMonth: info.DaysInMonth,
		TotalIncome: decimal.Zero,
	}

	spent := make(map[string]decimal.Decimal)
	for _, tx := range current {
		if tx.IsIgnored {
			continue
		}
		if tx.IsIncome {
			in.TotalIncome = in.TotalIncome.Add(tx.Amount)
			continue
		}
		id := categoryKey(tx)
		spent[id] = spent[id].Add(tx.Amount)
	}

	var lastMonth calendar.Period
	if len(history) > 0 {
		lastMonth = history[len(history)-1]
	}
	histTotal := make(map[string]decimal.Decimal)
	lastSpent := make(map[string]decimal.Decimal)
	for _, tx := range past {
		if !tx.IsExpense() {
			continue
		}
		id := categoryKey(tx)
		histTotal[id] = histTotal[id].Add(tx.Amount)
		if lastMonth.Contains(tx.TransactionDate) {
			lastSpent[id] = lastSpent[id].Add(tx.Amount)
		}
	}

	seen := make(map[string]bool)
	add := func(id, name string, budget *decimal.Decimal) {
		seen[id] = true
		_, hasSpend := spent[id]
		_, hasHist := histTotal[id]
		if !hasSpend && !hasHist && budget == nil {
			return
		}
		c := forecast.CategoryInput{
			CategoryID:   id,
			Name:         name,
			CurrentSpent: spent[id],
			Budget:       budget,
		}
		if v, ok := lastSpent[id]; ok && v.IsPositive() {
			c.LastMonthSpent = &v
		}
		if v, ok := histTotal[id]; ok && v.IsPositive() && len(history) > 0 {
			avg := v.Div(decimal.NewFromInt(int64(len(history))))
			c.HistoricalAvg = &avg
		}
		in.Categories = append(in.Categories, c)
	}

	for _, cat := range cats {
		add(cat.ID, cat.Name, cat.Budget)
	}
	// Spending under ids missing from the category table.
	for _, m := range []map[string]decimal.Decimal{spent, histTotal} {
		for _, id := range sortedKeys(m) {
			if seen[id] {
				continue
			}
			name := id
			if id == UncategorizedID {
				name = UncategorizedName
			}
			add(id, name, nil)
		}
	}
	return in
}

func categoryKey(tx core.Transaction) string {
	if tx.CategoryID == nil || *tx.CategoryID == "" {
		return UncategorizedID
	}
	return *tx.CategoryID
}

func categoryNames(cats []core.Category) map[string]string {
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	return slices.Sorted(maps.Keys(m))
}
