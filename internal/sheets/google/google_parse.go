package google

import (
	"fmt"
	"strings"
	"time"

	"fintrack/internal/calendar"
	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

var (
	forecastHeader     = []any{"Category", "Spent", "Projected", "Budget", "Vs Budget %", "Confidence", "Trend"}
	subscriptionHeader = []any{"Merchant", "Frequency", "Amount", "Confidence", "Last Payment", "Next Payment", "Transactions", "Category"}
)

// forecastRows lays out a forecast as a summary block, a blank row, the
// category table and, when present, the alerts.
func forecastRows(p calendar.Period, f core.MonthlyForecast) [][]any {
	rows := [][]any{
		{"Period", p.Label, p.Start.Format(dateLayout), p.End.Format(dateLayout)},
		{"Day", f.DayOfMonth, f.DaysInMonth},
		{"Spent", money(f.TotalSpent)},
		{"Projected", money(f.TotalProjected)},
		{"Budget", money(f.TotalBudget)},
		{"Income", money(f.TotalIncome)},
		{"Savings", money(f.ProjectedSavings)},
		{"Confidence", string(f.Confidence)},
		{"Trend", string(f.Trend)},
		{},
		forecastHeader,
	}
	for _, c := range f.Categories {
		budget, vs := "", ""
		if c.Budget != nil {
			budget = money(*c.Budget)
		}
		if c.VsBudget != nil {
			vs = fmt.Sprint(*c.VsBudget)
		}
		rows = append(rows, []any{
			c.Name, money(c.CurrentSpent), money(c.ProjectedTotal), budget, vs,
			string(c.Confidence), string(c.Trend),
		})
	}
	if len(f.Alerts) > 0 {
		rows = append(rows, []any{}, []any{"Alerts"})
		for _, a := range f.Alerts {
			rows = append(rows, []any{a})
		}
	}
	return rows
}

func subscriptionRows(asOf time.Time, subs []core.DetectedSubscription) [][]any {
	rows := make([][]any, 0, len(subs)+3)
	rows = append(rows, []any{"As of", asOf.Format(dateLayout)}, []any{}, subscriptionHeader)
	for _, s := range subs {
		cat := ""
		if s.CategoryID != nil {
			cat = *s.CategoryID
		}
		rows = append(rows, []any{
			s.MerchantName,
			string(s.Frequency),
			money(s.Amount),
			fmt.Sprintf("%.2f", s.Confidence),
			s.LastPayment.Format(dateLayout),
			s.NextPayment.Format(dateLayout),
			s.TransactionCount,
			cat,
		})
	}
	return rows
}

// parseBudgets converts a values matrix into categories. The header row must
// contain ID, Name and Budget in any order; rows without an id are skipped.
func parseBudgets(values [][]any) ([]core.Category, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := toStrings(values[0])
	colID := indexOf(headers, "ID")
	colName := indexOf(headers, "Name")
	colBudget := indexOf(headers, "Budget")
	if colID == -1 || colName == -1 || colBudget == -1 {
		return nil, fmt.Errorf("unexpected budgets header: got headers=%v", headers)
	}

	var out []core.Category
	seen := map[string]bool{}
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		id := safeGet(row, colID)
		if id == "" || strings.HasPrefix(id, "#") || seen[id] {
			continue
		}
		c := core.Category{ID: id, Name: safeGet(row, colName)}
		if c.Name == "" {
			c.Name = id
		}
		if raw := safeGet(row, colBudget); raw != "" {
			b, ok := parseAmount(raw)
			if !ok {
				return nil, fmt.Errorf("row %d: invalid budget %q", i+1, raw)
			}
			if b.IsNegative() {
				return nil, fmt.Errorf("row %d: %w", i+1, core.ErrNegativeAmount)
			}
			c.Budget = &b
		}
		seen[id] = true
		out = append(out, c)
	}
	return out, nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// parseAmount accepts plain numbers, a decimal comma and a leading euro sign.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "€"))
	if s == "" {
		return decimal.Zero, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(v, target) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx >= 0 && idx < len(arr) {
		return arr[idx]
	}
	return ""
}
