package calendar

import (
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNew_InvalidStartDay(t *testing.T) {
	for _, day := range []int{-1, 0, 32} {
		if _, err := New(day); !errors.Is(err, ErrInvalidStartDay) {
			t.Errorf("New(%d) error = %v, want ErrInvalidStartDay", day, err)
		}
	}
}

func TestCalendar_Period(t *testing.T) {
	tests := []struct {
		name      string
		startDay  int
		date      time.Time
		wantStart time.Time
		wantEnd   time.Time
		wantLabel string
	}{
		{
			name:      "start day 1 is a calendar month",
			startDay:  1,
			date:      date(2025, 2, 14),
			wantStart: date(2025, 2, 1),
			wantEnd:   date(2025, 2, 28),
			wantLabel: "February 2025",
		},
		{
			name:      "on the start day",
			startDay:  25,
			date:      date(2025, 1, 25),
			wantStart: date(2025, 1, 25),
			wantEnd:   date(2025, 2, 24),
			wantLabel: "February 2025",
		},
		{
			name:      "before the start day belongs to previous period",
			startDay:  25,
			date:      date(2025, 2, 24),
			wantStart: date(2025, 1, 25),
			wantEnd:   date(2025, 2, 24),
			wantLabel: "February 2025",
		},
		{
			name:      "across the year boundary",
			startDay:  10,
			date:      date(2025, 1, 5),
			wantStart: date(2024, 12, 10),
			wantEnd:   date(2025, 1, 9),
			wantLabel: "January 2025",
		},
		{
			name:      "start day 31 clamps in february",
			startDay:  31,
			date:      date(2025, 2, 28),
			wantStart: date(2025, 2, 28),
			wantEnd:   date(2025, 3, 30),
			wantLabel: "March 2025",
		},
		{
			name:      "start day 31 period ending before clamped february start",
			startDay:  31,
			date:      date(2025, 2, 10),
			wantStart: date(2025, 1, 31),
			wantEnd:   date(2025, 2, 27),
			wantLabel: "February 2025",
		},
		{
			name:      "start day 30 in a leap february",
			startDay:  30,
			date:      date(2024, 2, 29),
			wantStart: date(2024, 2, 29),
			wantEnd:   date(2024, 3, 29),
			wantLabel: "March 2024",
		},
		{
			name:      "time of day is ignored",
			startDay:  15,
			date:      time.Date(2025, 6, 14, 23, 59, 0, 0, time.UTC),
			wantStart: date(2025, 5, 15),
			wantEnd:   date(2025, 6, 14),
			wantLabel: "June 2025",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := MustNew(tt.startDay)
			got, err := c.Period(tt.date)
			if err != nil {
				t.Fatalf("Period() error = %v", err)
			}
			if !got.Start.Equal(tt.wantStart) || !got.End.Equal(tt.wantEnd) {
				t.Errorf("Period() = %s..%s, want %s..%s",
					got.Start.Format(time.DateOnly), got.End.Format(time.DateOnly),
					tt.wantStart.Format(time.DateOnly), tt.wantEnd.Format(time.DateOnly))
			}
			if got.Label != tt.wantLabel {
				t.Errorf("Period().Label = %q, want %q", got.Label, tt.wantLabel)
			}
		})
	}
}

func TestCalendar_PeriodContainsDate(t *testing.T) {
	for startDay := 1; startDay <= 31; startDay++ {
		c := MustNew(startDay)
		for d := date(2023, 12, 1); d.Before(date(2025, 3, 1)); d = d.AddDate(0, 0, 1) {
			p, err := c.Period(d)
			if err != nil {
				t.Fatalf("Period(%s) error = %v", d.Format(time.DateOnly), err)
			}
			if !p.Contains(d) {
				t.Fatalf("startDay=%d: %s not inside %s..%s", startDay, d.Format(time.DateOnly),
					p.Start.Format(time.DateOnly), p.End.Format(time.DateOnly))
			}
			day, _ := c.DayOfMonth(d)
			days, _ := c.Days(d)
			if day < 1 || day > days || days < 28 || days > 31 {
				t.Fatalf("startDay=%d date=%s: day %d of %d", startDay, d.Format(time.DateOnly), day, days)
			}
		}
	}
}

func TestCalendar_PeriodsTile(t *testing.T) {
	for _, startDay := range []int{1, 15, 28, 29, 30, 31} {
		c := MustNew(startDay)
		periods, err := c.Periods(date(2024, 1, 1), date(2025, 12, 31))
		if err != nil {
			t.Fatalf("Periods() error = %v", err)
		}
		for i := 1; i < len(periods); i++ {
			want := periods[i-1].End.AddDate(0, 0, 1)
			if !periods[i].Start.Equal(want) {
				t.Errorf("startDay=%d: gap or overlap between %s and %s", startDay,
					periods[i-1].End.Format(time.DateOnly), periods[i].Start.Format(time.DateOnly))
			}
		}
	}
}

func TestCalendar_AddMonthsRoundTrip(t *testing.T) {
	for _, startDay := range []int{1, 10, 25, 29, 31} {
		c := MustNew(startDay)
		for d := date(2024, 1, 1); d.Before(date(2024, 12, 31)); d = d.AddDate(0, 0, 3) {
			for _, n := range []int{-13, -2, -1, 0, 1, 3, 12} {
				shifted, err := c.AddMonths(d, n)
				if err != nil {
					t.Fatalf("AddMonths() error = %v", err)
				}
				back, _ := c.AddMonths(shifted, -n)
				orig, _ := c.Period(d)
				got, _ := c.Period(back)
				if !got.Start.Equal(orig.Start) {
					t.Fatalf("startDay=%d d=%s n=%d: round trip landed in %s, want %s", startDay,
						d.Format(time.DateOnly), n, got.Start.Format(time.DateOnly), orig.Start.Format(time.DateOnly))
				}
			}
		}
	}
}

func TestCalendar_AddMonths(t *testing.T) {
	c := MustNew(25)
	got, err := c.AddMonths(date(2025, 1, 30), 1)
	if err != nil {
		t.Fatalf("AddMonths() error = %v", err)
	}
	if want := date(2025, 3, 2); !got.Equal(want) {
		t.Errorf("AddMonths() = %s, want %s", got.Format(time.DateOnly), want.Format(time.DateOnly))
	}
}

func TestCalendar_DayOfMonth(t *testing.T) {
	c := MustNew(25)
	tests := []struct {
		date     time.Time
		wantDay  int
		wantDays int
	}{
		{date(2025, 1, 25), 1, 31},
		{date(2025, 2, 24), 31, 31},
		{date(2025, 2, 25), 1, 28},
		{date(2025, 3, 24), 28, 28},
	}
	for _, tt := range tests {
		day, err := c.DayOfMonth(tt.date)
		if err != nil {
			t.Fatalf("DayOfMonth() error = %v", err)
		}
		days, _ := c.Days(tt.date)
		if day != tt.wantDay || days != tt.wantDays {
			t.Errorf("%s: day %d of %d, want %d of %d", tt.date.Format(time.DateOnly), day, days, tt.wantDay, tt.wantDays)
		}
	}
}

func TestCalendar_Previous(t *testing.T) {
	c := MustNew(1)
	got, err := c.Previous(date(2025, 3, 10), 3)
	if err != nil {
		t.Fatalf("Previous() error = %v", err)
	}
	want := []time.Time{date(2024, 12, 1), date(2025, 1, 1), date(2025, 2, 1)}
	if len(got) != len(want) {
		t.Fatalf("Previous() returned %d periods, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Start.Equal(want[i]) {
			t.Errorf("Previous()[%d].Start = %s, want %s", i, got[i].Start.Format(time.DateOnly), want[i].Format(time.DateOnly))
		}
	}
}

func TestCalendar_InvalidInput(t *testing.T) {
	if _, err := MustNew(5).Period(time.Time{}); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("Period(zero) error = %v, want ErrInvalidDate", err)
	}
	if _, err := (Calendar{}).Period(date(2025, 1, 1)); !errors.Is(err, ErrInvalidStartDay) {
		t.Errorf("zero Calendar error = %v, want ErrInvalidStartDay", err)
	}
	if _, err := MustNew(5).Periods(date(2025, 2, 1), date(2025, 1, 1)); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("Periods(reversed) error = %v, want ErrInvalidDate", err)
	}
}
