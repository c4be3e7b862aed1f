package subscription

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

var ErrUnknownFrequency = errors.New("unknown frequency")

// Cadence is the strategy for one payment frequency: which mean intervals
// belong to it, how the next payment date is predicted and how a payment
// converts to a monthly equivalent.
type Cadence interface {
	Frequency() core.Frequency
	// Accepts reports whether a mean interval, in days, falls inside the
	// frequency's inclusive day range.
	Accepts(meanDays float64) bool
	Next(last time.Time) time.Time
	Monthly(amount decimal.Decimal) decimal.Decimal
}

type dayRange struct {
	min, max float64
}

func (r dayRange) contains(days float64) bool {
	return days >= r.min && days <= r.max
}

// WeeklyCadence advances by a fixed seven days.
type WeeklyCadence struct{}

func (WeeklyCadence) Frequency() core.Frequency { return core.Weekly }

func (WeeklyCadence) Accepts(meanDays float64) bool {
	return dayRange{6, 8}.contains(meanDays)
}

func (WeeklyCadence) Next(last time.Time) time.Time {
	return last.AddDate(0, 0, 7)
}

func (WeeklyCadence) Monthly(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(weeksPerMonth)
}

var weeksPerMonth = decimal.RequireFromString("4.33")

// MonthsCadence covers frequencies measured in whole calendar months.
type MonthsCadence struct {
	freq   core.Frequency
	months int
	days   dayRange
}

func (c MonthsCadence) Frequency() core.Frequency { return c.freq }

func (c MonthsCadence) Accepts(meanDays float64) bool {
	return c.days.contains(meanDays)
}

// Next adds the cadence's months to last, clamping the day to the end of a
// shorter target month (Jan 31 -> Feb 28).
func (c MonthsCadence) Next(last time.Time) time.Time {
	return addMonthsClamped(last, c.months)
}

func (c MonthsCadence) Monthly(amount decimal.Decimal) decimal.Decimal {
	if c.months == 1 {
		return amount
	}
	return amount.Div(decimal.NewFromInt(int64(c.months)))
}

// cadences is ordered by interval length; classification takes the first
// cadence that accepts the mean interval.
var cadences = []Cadence{
	WeeklyCadence{},
	MonthsCadence{freq: core.Monthly, months: 1, days: dayRange{28, 35}},
	MonthsCadence{freq: core.Quarterly, months: 3, days: dayRange{85, 100}},
	MonthsCadence{freq: core.Annual, months: 12, days: dayRange{350, 380}},
}

// CadenceFor returns the strategy for a frequency.
func CadenceFor(freq core.Frequency) (Cadence, error) {
	for _, c := range cadences {
		if c.Frequency() == freq {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFrequency, freq)
}

// Classify returns the cadence whose day range contains meanDays. ok is
// false for intervals outside every range.
func Classify(meanDays float64) (Cadence, bool) {
	for _, c := range cadences {
		if c.Accepts(meanDays) {
			return c, true
		}
	}
	return nil, false
}

func addMonthsClamped(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, t.Location())
}
