package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"fintrack/internal/calendar"
	"fintrack/internal/core"
	ports "fintrack/internal/sheets"

	"github.com/shopspring/decimal"
)

var (
	_ ports.ReportExporter = (*Store)(nil)
	_ ports.BudgetReader   = (*Store)(nil)
)

// Store keeps the last exported report in memory. It backs local runs and
// tests where no spreadsheet is configured.
type Store struct {
	mu            sync.Mutex
	budgets       []core.Category
	period        calendar.Period
	forecast      *core.MonthlyForecast
	asOf          time.Time
	subscriptions []core.DetectedSubscription
	writes        int
}

func New(budgets []core.Category) *Store {
	return &Store{budgets: dedupeCategories(budgets)}
}

// NewFromFiles seeds budgets from base/seed_budgets.txt. Each line is
// "id;name;budget" with an optional budget; blank lines and # comments are
// skipped and malformed lines are ignored.
func NewFromFiles(base string) *Store {
	var cats []core.Category
	for _, line := range readLines(filepath.Join(base, "seed_budgets.txt")) {
		c, err := parseBudgetLine(line)
		if err != nil {
			continue
		}
		cats = append(cats, c)
	}
	return New(cats)
}

// WriteForecast replaces the stored forecast.
func (s *Store) WriteForecast(_ context.Context, p calendar.Period, f core.MonthlyForecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.period = p
	s.forecast = &f
	s.writes++
	return nil
}

// WriteSubscriptions replaces the stored subscription list.
func (s *Store) WriteSubscriptions(_ context.Context, asOf time.Time, subs []core.DetectedSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asOf = asOf
	s.subscriptions = slices.Clone(subs)
	s.writes++
	return nil
}

// ReadBudgets returns a copy of the seeded categories.
func (s *Store) ReadBudgets(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.budgets), nil
}

// Forecast returns the last written forecast and its period.
func (s *Store) Forecast() (calendar.Period, core.MonthlyForecast, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forecast == nil {
		return calendar.Period{}, core.MonthlyForecast{}, false
	}
	return s.period, *s.forecast, true
}

// Subscriptions returns the last written subscription list.
func (s *Store) Subscriptions() (time.Time, []core.DetectedSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asOf, slices.Clone(s.subscriptions)
}

func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func parseBudgetLine(line string) (core.Category, error) {
	parts := strings.Split(line, ";")
	if len(parts) < 2 || len(parts) > 3 {
		return core.Category{}, fmt.Errorf("want id;name;budget, got %q", line)
	}
	c := core.Category{
		ID:   strings.TrimSpace(parts[0]),
		Name: strings.TrimSpace(parts[1]),
	}
	if c.ID == "" {
		return core.Category{}, core.ErrEmptyCategoryID
	}
	if c.Name == "" {
		c.Name = c.ID
	}
	if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
		b, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
		if err != nil {
			return core.Category{}, fmt.Errorf("budget %q: %w", parts[2], err)
		}
		if b.IsNegative() {
			return core.Category{}, core.ErrNegativeAmount
		}
		c.Budget = &b
	}
	return c, nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// dedupeCategories keeps the first category seen for each id, in input order.
func dedupeCategories(in []core.Category) []core.Category {
	seen := map[string]struct{}{}
	out := make([]core.Category, 0, len(in))
	for _, c := range in {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
