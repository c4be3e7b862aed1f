package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type periodResponse struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Label       string `json:"label"`
	DayOfMonth  int    `json:"day_of_month"`
	DaysInMonth int    `json:"days_in_month"`
}

type subscriptionResponse struct {
	MerchantKey      string  `json:"merchant_key"`
	MerchantName     string  `json:"merchant_name"`
	Frequency        string  `json:"frequency"`
	Amount           string  `json:"amount"`
	Confidence       float64 `json:"confidence"`
	LastPayment      string  `json:"last_payment"`
	NextPayment      string  `json:"next_payment"`
	TransactionCount int     `json:"transaction_count"`
	CategoryID       *string `json:"category_id"`
}

type subscriptionsResponse struct {
	AsOf          string                 `json:"as_of"`
	From          string                 `json:"from"`
	MonthlyTotal  string                 `json:"monthly_total"`
	Subscriptions []subscriptionResponse `json:"subscriptions"`
}

type categoryForecastResponse struct {
	CategoryID     string  `json:"category_id"`
	Name           string  `json:"name"`
	CurrentSpent   string  `json:"current_spent"`
	ProjectedTotal string  `json:"projected_total"`
	Budget         *string `json:"budget"`
	VsBudget       *int    `json:"vs_budget"`
	Confidence     string  `json:"confidence"`
	Trend          string  `json:"trend"`
}

type forecastResponse struct {
	Period           periodResponse             `json:"period"`
	TotalSpent       string                     `json:"total_spent"`
	TotalProjected   string                     `json:"total_projected"`
	TotalBudget      string                     `json:"total_budget"`
	TotalIncome      string                     `json:"total_income"`
	ProjectedSavings string                     `json:"projected_savings"`
	Confidence       string                     `json:"confidence"`
	Trend            string                     `json:"trend"`
	Categories       []categoryForecastResponse `json:"categories"`
	Alerts           []string                   `json:"alerts"`
}

type resolveRequest struct {
	Counterparty string `json:"counterparty"`
}

type resolveResponse struct {
	Counterparty string  `json:"counterparty"`
	Brand        string  `json:"brand"`
	Kind         string  `json:"kind"`
	MerchantID   *string `json:"merchant_id"`
	MerchantName string  `json:"merchant_name,omitempty"`
}

type mergePlanResponse struct {
	Brand        string   `json:"brand"`
	SurvivorID   string   `json:"survivor_id"`
	DuplicateIDs []string `json:"duplicate_ids"`
	Aliases      []string `json:"aliases"`
}

type dedupResponse struct {
	DryRun  bool                `json:"dry_run"`
	Scanned int                 `json:"scanned"`
	Removed int                 `json:"removed"`
	Plans   []mergePlanResponse `json:"plans"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{
		Error:     msg,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

// writeInternalError logs err and hides it from the client.
func writeInternalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	log.FromContext(r.Context()).Log(r.Context(), slog.LevelError, "Request failed",
		log.NewFields().WithOperation(op).WithError(err).ToSlice()...)
	writeError(w, r, http.StatusInternalServerError, "internal error")
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func moneyPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

func toPeriodResponse(p services.PeriodInfo) periodResponse {
	return periodResponse{
		Start:       p.Start.Format(dateLayout),
		End:         p.End.Format(dateLayout),
		Label:       p.Label,
		DayOfMonth:  p.DayOfMonth,
		DaysInMonth: p.DaysInMonth,
	}
}

func toSubscriptionsResponse(rep services.SubscriptionReport) subscriptionsResponse {
	out := subscriptionsResponse{
		AsOf:          rep.AsOf.Format(dateLayout),
		From:          rep.From.Format(dateLayout),
		MonthlyTotal:  money(rep.MonthlyTotal),
		Subscriptions: make([]subscriptionResponse, 0, len(rep.Subscriptions)),
	}
	for _, s := range rep.Subscriptions {
		out.Subscriptions = append(out.Subscriptions, subscriptionResponse{
			MerchantKey:      s.MerchantKey,
			MerchantName:     s.MerchantName,
			Frequency:        string(s.Frequency),
			Amount:           money(s.Amount),
			Confidence:       s.Confidence,
			LastPayment:      s.LastPayment.Format(dateLayout),
			NextPayment:      s.NextPayment.Format(dateLayout),
			TransactionCount: s.TransactionCount,
			CategoryID:       s.CategoryID,
		})
	}
	return out
}

func toForecastResponse(rep services.ForecastReport) forecastResponse {
	f := rep.Forecast
	out := forecastResponse{
		Period:           toPeriodResponse(rep.Period),
		TotalSpent:       money(f.TotalSpent),
		TotalProjected:   money(f.TotalProjected),
		TotalBudget:      money(f.TotalBudget),
		TotalIncome:      money(f.TotalIncome),
		ProjectedSavings: money(f.ProjectedSavings),
		Confidence:       string(f.Confidence),
		Trend:            string(f.Trend),
		Categories:       make([]categoryForecastResponse, 0, len(f.Categories)),
		Alerts:           append([]string{}, f.Alerts...),
	}
	for _, c := range f.Categories {
		out.Categories = append(out.Categories, toCategoryForecast(c))
	}
	return out
}

func toCategoryForecast(c core.CategoryForecast) categoryForecastResponse {
	return categoryForecastResponse{
		CategoryID:     c.CategoryID,
		Name:           c.Name,
		CurrentSpent:   money(c.CurrentSpent),
		ProjectedTotal: money(c.ProjectedTotal),
		Budget:         moneyPtr(c.Budget),
		VsBudget:       c.VsBudget,
		Confidence:     string(c.Confidence),
		Trend:          string(c.Trend),
	}
}

func toDedupResponse(rep services.DedupReport) dedupResponse {
	out := dedupResponse{
		DryRun:  rep.DryRun,
		Scanned: rep.Scanned,
		Removed: rep.Removed,
		Plans:   make([]mergePlanResponse, 0, len(rep.Plans)),
	}
	for _, p := range rep.Plans {
		out.Plans = append(out.Plans, mergePlanResponse{
			Brand:        p.Brand,
			SurvivorID:   p.SurvivorID,
			DuplicateIDs: p.DuplicateIDs,
			Aliases:      p.Aliases,
		})
	}
	return out
}
