package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/cache"
	"fintrack/internal/calendar"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/merchant"
	"fintrack/internal/services"
)

var testNow = time.Date(2024, time.March, 15, 9, 30, 0, 0, time.UTC)

type fakeAnalytics struct {
	gotDate time.Time
	err     error
}

func (f *fakeAnalytics) Period(date time.Time) (services.PeriodInfo, error) {
	f.gotDate = date
	if f.err != nil {
		return services.PeriodInfo{}, f.err
	}
	p, err := calendar.MustNew(1).Period(date)
	if err != nil {
		return services.PeriodInfo{}, err
	}
	return services.PeriodInfo{Period: p, DayOfMonth: date.Day(), DaysInMonth: p.Days()}, nil
}

func (f *fakeAnalytics) Subscriptions(ctx context.Context, asOf time.Time) (services.SubscriptionReport, error) {
	f.gotDate = asOf
	if f.err != nil {
		return services.SubscriptionReport{}, f.err
	}
	return services.SubscriptionReport{
		AsOf: asOf,
		From: core.NewDate(2023, time.March, 1),
		Subscriptions: []core.DetectedSubscription{{
			MerchantKey:      "netflix",
			MerchantName:     "Netflix",
			Frequency:        core.Monthly,
			Amount:           decimal.RequireFromString("43"),
			Confidence:       0.86,
			LastPayment:      core.NewDate(2024, time.March, 5),
			NextPayment:      core.NewDate(2024, time.April, 5),
			TransactionCount: 3,
		}},
		MonthlyTotal: decimal.RequireFromString("43"),
	}, nil
}

func (f *fakeAnalytics) Forecast(ctx context.Context, asOf time.Time) (services.ForecastReport, error) {
	f.gotDate = asOf
	if f.err != nil {
		return services.ForecastReport{}, f.err
	}
	info, _ := f.Period(asOf)
	budget := decimal.NewFromInt(500)
	vs := 122
	return services.ForecastReport{
		Period: info,
		Forecast: core.MonthlyForecast{
			DayOfMonth:       15,
			DaysInMonth:      31,
			TotalSpent:       decimal.NewFromInt(300),
			TotalProjected:   decimal.NewFromInt(612),
			TotalBudget:      budget,
			TotalIncome:      decimal.NewFromInt(4000),
			ProjectedSavings: decimal.NewFromInt(3388),
			Confidence:       core.ConfidenceHigh,
			Trend:            core.TrendStable,
			Categories: []core.CategoryForecast{{
				CategoryID:     "food",
				Name:           "Food",
				CurrentSpent:   decimal.NewFromInt(300),
				ProjectedTotal: decimal.NewFromInt(612),
				Budget:         &budget,
				VsBudget:       &vs,
				Confidence:     core.ConfidenceHigh,
				Trend:          core.TrendStable,
			}},
		},
	}, nil
}

type fakeResolver struct{}

func (fakeResolver) Preview(ctx context.Context, counterparty string) (services.ResolveResult, error) {
	id := "m1"
	return services.ResolveResult{
		Counterparty: counterparty,
		Brand:        "lidl",
		Kind:         merchant.KindMerchant.String(),
		MerchantID:   &id,
		MerchantName: "Lidl",
	}, nil
}

type fakeDedup struct {
	gotDryRun bool
}

func (f *fakeDedup) Run(ctx context.Context, dryRun bool) (services.DedupReport, error) {
	f.gotDryRun = dryRun
	return services.DedupReport{
		DryRun:  dryRun,
		Scanned: 4,
		Removed: 2,
		Plans: []merchant.MergePlan{
			{Brand: "lidl", SurvivorID: "c", DuplicateIDs: []string{"a", "b"}, Aliases: []string{"lidl"}},
		},
	}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

type testServer struct {
	*Server
	analytics *fakeAnalytics
	dedup     *fakeDedup
}

func newTestServer(t *testing.T, mutate func(*Deps)) testServer {
	t.Helper()
	analytics := &fakeAnalytics{}
	dedup := &fakeDedup{}
	brands := cache.NewLRUCache[services.BrandExtraction](10, time.Hour)
	brands.Get("miss")
	deps := Deps{
		Analytics:  analytics,
		Resolver:   fakeResolver{},
		Dedup:      dedup,
		DB:         fakePinger{},
		BrandCache: brands,
		Logger:     log.New(log.Config{Output: io.Discard, Component: log.ComponentHTTP}),
		Now:        func() time.Time { return testNow },
	}
	if mutate != nil {
		mutate(&deps)
	}
	srv := NewServer(":0", deps)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return testServer{Server: srv, analytics: analytics, dedup: dedup}
}

func (s testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.RemoteAddr = "203.0.113.7:41000"
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := srv.do(http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rr.Code)
		}
		if rr.Header().Get(log.RequestIDHeader) == "" {
			t.Errorf("%s missing request id header", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s missing security headers", path)
		}
	}

	down := newTestServer(t, func(d *Deps) { d.DB = fakePinger{err: errors.New("disk I/O error")} })
	rr := down.do(http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz with failing db status = %d, want 503", rr.Code)
	}
}

func TestPeriod(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantStart string
	}{
		{"explicit date", "/api/period?date=2024-02-10", http.StatusOK, "2024-02-01"},
		{"defaults to today", "/api/period", http.StatusOK, "2024-03-01"},
		{"malformed date", "/api/period?date=10/02/2024", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil)
			rr := srv.do(http.MethodGet, tt.target, "")
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantCode, rr.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				if got := decode[errorResponse](t, rr); got.Error == "" || got.RequestID == "" {
					t.Errorf("error body = %+v", got)
				}
				return
			}
			got := decode[periodResponse](t, rr)
			if got.Start != tt.wantStart {
				t.Errorf("start = %s, want %s", got.Start, tt.wantStart)
			}
		})
	}
}

func TestServiceErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"invalid date from calendar", fmt.Errorf("financial period: %w", calendar.ErrInvalidDate), http.StatusBadRequest},
		{"storage failure", errors.New("database is locked"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil)
			srv.analytics.err = tt.err
			for _, path := range []string{"/api/period", "/api/subscriptions", "/api/forecast"} {
				rr := srv.do(http.MethodGet, path, "")
				if rr.Code != tt.wantCode {
					t.Errorf("%s status = %d, want %d", path, rr.Code, tt.wantCode)
				}
				if tt.wantCode == http.StatusInternalServerError && strings.Contains(rr.Body.String(), "locked") {
					t.Errorf("%s leaked the internal error: %s", path, rr.Body.String())
				}
			}
		})
	}
}

func TestSubscriptions(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := srv.do(http.MethodGet, "/api/subscriptions?date=2024-03-20", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if !srv.analytics.gotDate.Equal(core.NewDate(2024, time.March, 20)) {
		t.Errorf("analytics called with %v", srv.analytics.gotDate)
	}
	got := decode[subscriptionsResponse](t, rr)
	if got.MonthlyTotal != "43.00" || len(got.Subscriptions) != 1 {
		t.Fatalf("response = %+v", got)
	}
	sub := got.Subscriptions[0]
	if sub.Amount != "43.00" || sub.Frequency != "monthly" || sub.NextPayment != "2024-04-05" {
		t.Errorf("subscription = %+v", sub)
	}
}

func TestForecast(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := srv.do(http.MethodGet, "/api/forecast", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[forecastResponse](t, rr)
	if got.TotalProjected != "612.00" || got.ProjectedSavings != "3388.00" || got.Period.Label == "" {
		t.Errorf("response = %+v", got)
	}
	if got.Alerts == nil {
		t.Error("alerts should encode as an empty list")
	}
	if len(got.Categories) != 1 || *got.Categories[0].Budget != "500.00" || *got.Categories[0].VsBudget != 122 {
		t.Errorf("categories = %+v", got.Categories)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"valid", `{"counterparty":"LIDL FORT SLUZEW"}`, http.StatusOK},
		{"empty body", ``, http.StatusBadRequest},
		{"malformed", `{"counterparty":`, http.StatusBadRequest},
		{"unknown field", `{"name":"LIDL"}`, http.StatusBadRequest},
		{"blank counterparty", `{"counterparty":"  "}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil)
			rr := srv.do(http.MethodPost, "/api/merchants/resolve", tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantCode, rr.Body.String())
			}
			if tt.wantCode == http.StatusOK {
				got := decode[resolveResponse](t, rr)
				if got.Brand != "lidl" || got.MerchantID == nil || *got.MerchantID != "m1" {
					t.Errorf("response = %+v", got)
				}
			}
		})
	}
}

func TestDedup(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantCode   int
		wantDryRun bool
	}{
		{"default executes", "/api/merchants/dedup", http.StatusOK, false},
		{"dry run", "/api/merchants/dedup?dry_run=true", http.StatusOK, true},
		{"bad flag", "/api/merchants/dedup?dry_run=maybe", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil)
			rr := srv.do(http.MethodPost, tt.target, "")
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			if srv.dedup.gotDryRun != tt.wantDryRun {
				t.Errorf("dryRun = %v, want %v", srv.dedup.gotDryRun, tt.wantDryRun)
			}
			got := decode[dedupResponse](t, rr)
			if got.Removed != 2 || len(got.Plans) != 1 || got.Plans[0].SurvivorID != "c" {
				t.Errorf("response = %+v", got)
			}
		})
	}

	srv := newTestServer(t, nil)
	if rr := srv.do(http.MethodGet, "/api/merchants/dedup", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET dedup status = %d, want 405", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, func(d *Deps) { d.RateLimit = 2 })
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, srv.do(http.MethodPost, "/api/merchants/dedup?dry_run=true", "").Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}
	// GETs are not limited.
	if rr := srv.do(http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Errorf("GET after limit status = %d", rr.Code)
	}

	rr := srv.do(http.MethodGet, "/metrics", "")
	body := rr.Body.String()
	for _, want := range []string{
		"rate_limit_hits_total 1",
		`brand_cache_requests_total{result="miss"} 1`,
		"brand_cache_entries 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %q:\n%s", want, body)
		}
	}
}

func TestSuspiciousRequests(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, target := range []string{"/api/period?date=../../etc/passwd", "/.env"} {
		if rr := srv.do(http.MethodGet, target, ""); rr.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", target, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("User-Agent", "sqlmap/1.7")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("scanner user agent status = %d, want 400", rr.Code)
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.7:5000", "", "203.0.113.7"},
		{"untrusted proxy header ignored", "203.0.113.7:5000", "198.51.100.1", "203.0.113.7"},
		{"trusted proxy", "10.0.0.2:5000", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"trusted proxy bad header", "10.0.0.2:5000", "garbage", "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", bytes.NewReader(nil))
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractClientIP(req); got != tt.want {
				t.Errorf("extractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
