// Package forecast projects month-end spending from partial current-month
// data, per category and in aggregate.
package forecast

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Params are the blending weights and thresholds of the projection. They are
// heuristics; DefaultParams holds the values in production use.
type Params struct {
	// LinearWeight and HistoricalWeight blend the linear projection with the
	// historical average when one is available.
	LinearWeight     float64
	HistoricalWeight float64
	// HighAgreement and MediumAgreement bound |linear-historical|/historical
	// for the high and medium confidence labels.
	HighAgreement   float64
	MediumAgreement float64
	// MinDaysForMedium is the first day of the month at which a projection
	// without history is labelled medium confidence.
	MinDaysForMedium int
	// TrendThreshold is the relative change against the baseline beyond
	// which a trend is up or down.
	TrendThreshold float64
	// NearLimitPercent is the budget usage above which a near-limit alert
	// is raised.
	NearLimitPercent int
}

func DefaultParams() Params {
	return Params{
		LinearWeight:     0.6,
		HistoricalWeight: 0.4,
		HighAgreement:    0.2,
		MediumAgreement:  0.4,
		MinDaysForMedium: 15,
		TrendThreshold:   0.10,
		NearLimitPercent: 90,
	}
}

// CategoryInput is the spending data of one category. Nil pointers mean the
// value is unknown.
type CategoryInput struct {
	CategoryID     string
	Name           string
	CurrentSpent   decimal.Decimal
	LastMonthSpent *decimal.Decimal
	// HistoricalAvg is the trailing monthly average, usually over three
	// months.
	HistoricalAvg *decimal.Decimal
	Budget        *decimal.Decimal
}

type Input struct {
	// DayOfMonth is the 1-based day within the current financial month and
	// DaysInMonth its length.
	DayOfMonth  int
	DaysInMonth int
	TotalIncome decimal.Decimal
	Categories  []CategoryInput
}

// Engine computes forecasts. It holds no state besides its parameters.
type Engine struct {
	params Params
}

func NewEngine(params Params) *Engine {
	return &Engine{params: params}
}

// Projection is the unrounded result for one series of spending.
type Projection struct {
	Linear     decimal.Decimal
	Projected  decimal.Decimal
	Confidence core.ForecastConfidence
}

// Project extrapolates current spending to the end of the month and blends
// it with the historical average when that is positive.
func (e *Engine) Project(current decimal.Decimal, day, days int, historical *decimal.Decimal) Projection {
	linear := decimal.Zero
	if day > 0 {
		linear = current.Mul(decimal.NewFromInt(int64(days))).Div(decimal.NewFromInt(int64(day)))
	}

	if historical == nil || !historical.IsPositive() {
		conf := core.ConfidenceLow
		if day >= e.params.MinDaysForMedium {
			conf = core.ConfidenceMedium
		}
		return Projection{Linear: linear, Projected: linear, Confidence: conf}
	}

	h := *historical
	projected := linear.Mul(decimal.NewFromFloat(e.params.LinearWeight)).
		Add(h.Mul(decimal.NewFromFloat(e.params.HistoricalWeight)))
	gap, _ := linear.Sub(h).Abs().Div(h).Float64()

	conf := core.ConfidenceLow
	switch {
	case gap < e.params.HighAgreement:
		conf = core.ConfidenceHigh
	case gap < e.params.MediumAgreement:
		conf = core.ConfidenceMedium
	}
	return Projection{Linear: linear, Projected: projected, Confidence: conf}
}

// TrendOf compares projected with baseline. Without a positive baseline the
// trend is stable.
func (e *Engine) TrendOf(projected decimal.Decimal, baseline *decimal.Decimal) core.Trend {
	if baseline == nil || !baseline.IsPositive() {
		return core.TrendStable
	}
	threshold := decimal.NewFromFloat(e.params.TrendThreshold)
	upper := baseline.Mul(decimal.NewFromInt(1).Add(threshold))
	lower := baseline.Mul(decimal.NewFromInt(1).Sub(threshold))
	switch {
	case projected.GreaterThan(upper):
		return core.TrendUp
	case projected.LessThan(lower):
		return core.TrendDown
	default:
		return core.TrendStable
	}
}

// VsBudget returns projected as a rounded percentage of budget, or nil
// without a positive budget.
func VsBudget(projected decimal.Decimal, budget *decimal.Decimal) *int {
	if budget == nil || !budget.IsPositive() {
		return nil
	}
	pct := int(projected.Mul(decimal.NewFromInt(100)).Div(*budget).Round(0).IntPart())
	return &pct
}

type projectedCategory struct {
	out       core.CategoryForecast
	projected decimal.Decimal
}

// Forecast projects every category and the month as a whole. Monetary
// values are rounded to cents only in the returned forecast.
func (e *Engine) Forecast(in Input) core.MonthlyForecast {
	var (
		cats           []projectedCategory
		totalSpent     = decimal.Zero
		totalProjected = decimal.Zero
		totalBudget    = decimal.Zero
		totalHist      *decimal.Decimal
		totalLast      *decimal.Decimal
	)

	for _, c := range in.Categories {
		p := e.Project(c.CurrentSpent, in.DayOfMonth, in.DaysInMonth, c.HistoricalAvg)
		baseline := c.LastMonthSpent
		if baseline == nil {
			baseline = c.HistoricalAvg
		}
		cf := core.CategoryForecast{
			CategoryID:     c.CategoryID,
			Name:           c.Name,
			CurrentSpent:   core.RoundMoney(c.CurrentSpent),
			ProjectedTotal: core.RoundMoney(p.Projected),
			Budget:         roundPtr(c.Budget),
			VsBudget:       VsBudget(p.Projected, c.Budget),
			Confidence:     p.Confidence,
			Trend:          e.TrendOf(p.Projected, baseline),
		}
		cats = append(cats, projectedCategory{out: cf, projected: p.Projected})

		totalSpent = totalSpent.Add(c.CurrentSpent)
		totalProjected = totalProjected.Add(p.Projected)
		if c.Budget != nil && c.Budget.IsPositive() {
			totalBudget = totalBudget.Add(*c.Budget)
		}
		totalHist = addPtr(totalHist, c.HistoricalAvg)
		totalLast = addPtr(totalLast, c.LastMonthSpent)
	}

	sort.SliceStable(cats, func(i, j int) bool {
		return cats[i].projected.GreaterThan(cats[j].projected)
	})

	var alerts []string
	if totalBudget.IsPositive() && totalProjected.GreaterThan(totalBudget) {
		alerts = append(alerts, fmt.Sprintf("Total spending is projected to exceed the budget by ~%s",
			totalProjected.Sub(totalBudget).Round(0).String()))
	}

	out := core.MonthlyForecast{
		DayOfMonth:  in.DayOfMonth,
		DaysInMonth: in.DaysInMonth,
		Categories:  make([]core.CategoryForecast, 0, len(cats)),
	}
	for _, c := range cats {
		out.Categories = append(out.Categories, c.out)
		if alert, ok := e.categoryAlert(c); ok {
			alerts = append(alerts, alert)
		}
	}

	overall := e.Project(totalSpent, in.DayOfMonth, in.DaysInMonth, totalHist)
	baseline := totalLast
	if baseline == nil {
		baseline = totalHist
	}

	out.TotalSpent = core.RoundMoney(totalSpent)
	out.TotalProjected = core.RoundMoney(totalProjected)
	out.TotalBudget = core.RoundMoney(totalBudget)
	out.TotalIncome = core.RoundMoney(in.TotalIncome)
	out.ProjectedSavings = core.RoundMoney(in.TotalIncome.Sub(totalProjected))
	out.Confidence = overall.Confidence
	out.Trend = e.TrendOf(totalProjected, baseline)
	out.Alerts = alerts
	return out
}

func (e *Engine) categoryAlert(c projectedCategory) (string, bool) {
	vs := c.out.VsBudget
	if vs == nil {
		return "", false
	}
	name := c.out.Name
	if name == "" {
		name = c.out.CategoryID
	}
	switch {
	case *vs > 100:
		over := c.projected.Sub(*c.out.Budget).Round(0)
		return fmt.Sprintf("%s is projected to exceed its budget by ~%s (%d%%)", name, over.String(), *vs), true
	case *vs > e.params.NearLimitPercent:
		return fmt.Sprintf("%s is close to its budget limit (%d%%)", name, *vs), true
	}
	return "", false
}

func addPtr(sum, v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return sum
	}
	if sum == nil {
		s := *v
		return &s
	}
	s := sum.Add(*v)
	return &s
}

func roundPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	r := core.RoundMoney(*d)
	return &r
}
