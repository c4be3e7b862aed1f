// Package calendar maps calendar dates onto "financial months": accounting
// periods that start on a configurable day of the month (for example the day
// the salary lands) instead of the 1st.
//
// A financial month that begins in calendar month M runs from day StartDay of
// M up to the day before StartDay of M+1. When StartDay does not exist in a
// short month (29-31 in February, 31 in April) the start is clamped to that
// month's last day, so consecutive periods always tile the timeline.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidStartDay = errors.New("financial month start day must be between 1 and 31")
	ErrInvalidDate     = errors.New("invalid date")
)

// Period is one financial month. End is inclusive.
type Period struct {
	Start time.Time
	End   time.Time
	// Label names the calendar month the period ends in ("February 2025"),
	// which is where most of its days fall for start days past the 1st.
	Label string
}

// Contains reports whether d falls inside the period.
func (p Period) Contains(d time.Time) bool {
	d = dateOf(d)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Days returns the number of days in the period.
func (p Period) Days() int {
	return daysBetween(p.Start, p.End) + 1
}

// Calendar computes financial months for a fixed start day.
type Calendar struct {
	startDay int
}

// New returns a calendar whose months start on startDay (1-31).
func New(startDay int) (Calendar, error) {
	if startDay < 1 || startDay > 31 {
		return Calendar{}, fmt.Errorf("%w: got %d", ErrInvalidStartDay, startDay)
	}
	return Calendar{startDay: startDay}, nil
}

// MustNew is like New but panics on an invalid start day.
func MustNew(startDay int) Calendar {
	c, err := New(startDay)
	if err != nil {
		panic(err)
	}
	return c
}

// StartDay returns the configured start day.
func (c Calendar) StartDay() int {
	return c.startDay
}

// Period returns the financial month containing d.
func (c Calendar) Period(d time.Time) (Period, error) {
	if err := c.check(d); err != nil {
		return Period{}, err
	}
	year, month := c.anchor(dateOf(d))
	return c.periodFor(year, month), nil
}

// AddMonths shifts d by n financial months, keeping its offset within the
// period. The offset is clamped to the length of the target period, so
// AddMonths(AddMonths(d, n), -n) always lands in d's period.
func (c Calendar) AddMonths(d time.Time, n int) (time.Time, error) {
	if err := c.check(d); err != nil {
		return time.Time{}, err
	}
	d = dateOf(d)
	year, month := c.anchor(d)
	offset := daysBetween(c.startOf(year, month), d)

	target := c.periodFor(year, month+time.Month(n))
	shifted := target.Start.AddDate(0, 0, offset)
	if shifted.After(target.End) {
		shifted = target.End
	}
	return shifted, nil
}

// Days returns the length (28-31) of the financial month containing d.
func (c Calendar) Days(d time.Time) (int, error) {
	p, err := c.Period(d)
	if err != nil {
		return 0, err
	}
	return p.Days(), nil
}

// DayOfMonth returns the 1-based position of d within its financial month.
func (c Calendar) DayOfMonth(d time.Time) (int, error) {
	p, err := c.Period(d)
	if err != nil {
		return 0, err
	}
	return daysBetween(p.Start, dateOf(d)) + 1, nil
}

// Periods returns the financial months overlapping [from, to], oldest first.
func (c Calendar) Periods(from, to time.Time) ([]Period, error) {
	if err := c.check(from); err != nil {
		return nil, err
	}
	if err := c.check(to); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end %s before start %s", ErrInvalidDate,
			to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	year, month := c.anchor(dateOf(from))
	last := dateOf(to)

	var out []Period
	for {
		p := c.periodFor(year, month)
		if p.Start.After(last) {
			break
		}
		out = append(out, p)
		month++
	}
	return out, nil
}

// Previous returns the n financial months immediately before the one
// containing d, oldest first.
func (c Calendar) Previous(d time.Time, n int) ([]Period, error) {
	if err := c.check(d); err != nil {
		return nil, err
	}
	year, month := c.anchor(dateOf(d))
	out := make([]Period, 0, n)
	for i := n; i >= 1; i-- {
		out = append(out, c.periodFor(year, month-time.Month(i)))
	}
	return out, nil
}

func (c Calendar) check(d time.Time) error {
	if c.startDay == 0 {
		return ErrInvalidStartDay
	}
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// anchor returns the calendar month in which the period containing d starts.
func (c Calendar) anchor(d time.Time) (int, time.Month) {
	year, month := d.Year(), d.Month()
	if d.Before(c.startOf(year, month)) {
		prev := time.Date(year, month-1, 1, 0, 0, 0, 0, time.UTC)
		return prev.Year(), prev.Month()
	}
	return year, month
}

func (c Calendar) periodFor(year int, month time.Month) Period {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	start := c.startOf(first.Year(), first.Month())
	next := first.AddDate(0, 1, 0)
	end := c.startOf(next.Year(), next.Month()).AddDate(0, 0, -1)
	return Period{
		Start: start,
		End:   end,
		Label: end.Format("January 2006"),
	}
}

// startOf returns the first day of the financial month anchored in the
// given calendar month, clamped to the month's last day.
func (c Calendar) startOf(year int, month time.Month) time.Time {
	day := c.startDay
	if last := lastDay(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func lastDay(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
