package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Weekly    Frequency = "weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Annual    Frequency = "annual"
)

const (
	ConfidenceHigh   ForecastConfidence = "high"
	ConfidenceMedium ForecastConfidence = "medium"
	ConfidenceLow    ForecastConfidence = "low"
)

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

type (
	Frequency          string
	ForecastConfidence string
	Trend              string

	// Transaction is a bank transaction as read from storage. Amount is never
	// negative; the direction of the cash flow is carried by IsIncome.
	Transaction struct {
		ID               string
		Amount           decimal.Decimal
		IsIncome         bool
		IsIgnored        bool
		TransactionDate  time.Time
		CategoryID       *string
		CounterpartyName *string
		Description      string
		MerchantID       *string
		Merchant         string // resolved display name, empty when unknown
	}

	// MerchantRecord is a known merchant. Name is the lower-cased canonical
	// key; names and aliases are unique across all live records.
	MerchantRecord struct {
		ID          string
		Name        string
		DisplayName string
		Aliases     []string
		CategoryID  *string
		IconURL     string
	}

	Category struct {
		ID     string
		Name   string
		Budget *decimal.Decimal
	}

	DetectedSubscription struct {
		MerchantKey      string
		MerchantName     string
		Frequency        Frequency
		Amount           decimal.Decimal
		Confidence       float64
		LastPayment      time.Time
		NextPayment      time.Time
		TransactionCount int
		CategoryID       *string
	}

	CategoryForecast struct {
		CategoryID     string
		Name           string
		CurrentSpent   decimal.Decimal
		ProjectedTotal decimal.Decimal
		Budget         *decimal.Decimal
		VsBudget       *int // projected as a rounded percentage of budget
		Confidence     ForecastConfidence
		Trend          Trend
	}

	MonthlyForecast struct {
		DayOfMonth       int
		DaysInMonth      int
		TotalSpent       decimal.Decimal
		TotalProjected   decimal.Decimal
		TotalBudget      decimal.Decimal
		TotalIncome      decimal.Decimal
		ProjectedSavings decimal.Decimal
		Confidence       ForecastConfidence
		Trend            Trend
		Categories       []CategoryForecast
		Alerts           []string
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrEmptyID         = errors.New("empty id")
	ErrMissingDate     = errors.New("missing transaction date")
	ErrEmptyMerchant   = errors.New("empty merchant name")
	ErrDuplicateAlias  = errors.New("duplicate merchant alias")
	ErrEmptyCategoryID = errors.New("empty category id")
)

// NewDate returns the calendar date at midnight UTC.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf drops the time-of-day component of t, keeping its calendar date.
func DateOf(t time.Time) time.Time {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if t.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if t.TransactionDate.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// IsExpense reports whether the transaction counts towards spending.
func (t Transaction) IsExpense() bool {
	return !t.IsIncome && !t.IsIgnored
}

// Counterparty returns the counterparty name or an empty string.
func (t Transaction) Counterparty() string {
	if t.CounterpartyName == nil {
		return ""
	}
	return *t.CounterpartyName
}

func (m MerchantRecord) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyMerchant
	}
	seen := map[string]struct{}{strings.ToLower(m.Name): {}}
	for _, a := range m.Aliases {
		key := strings.ToLower(a)
		if _, dup := seen[key]; dup {
			return ErrDuplicateAlias
		}
		seen[key] = struct{}{}
	}
	return nil
}

// HasCategory reports whether a category is assigned to the merchant.
func (m MerchantRecord) HasCategory() bool {
	return m.CategoryID != nil && *m.CategoryID != ""
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrEmptyCategoryID
	}
	if c.Budget != nil && c.Budget.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}
