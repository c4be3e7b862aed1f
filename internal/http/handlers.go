package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"fintrack/internal/calendar"
	"fintrack/internal/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks the database when one is configured.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "not_configured"}
	status, code := "ready", http.StatusOK

	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			checks["database"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	writeJSON(w, r, code, map[string]any{"status": status, "checks": checks})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Requests rejected by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n", s.limiter.rejected())
	fmt.Fprintf(w, "# HELP suspicious_requests_total Requests rejected as probing\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n", atomic.LoadInt64(&s.suspicious))
	fmt.Fprintf(w, "# HELP active_rate_limit_clients Clients tracked by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n", s.limiter.activeClients())

	if c := s.deps.BrandCache; c != nil {
		st := c.Stats()
		fmt.Fprintf(w, "# HELP brand_cache_requests_total Brand extraction cache lookups\n")
		fmt.Fprintf(w, "# TYPE brand_cache_requests_total counter\n")
		fmt.Fprintf(w, "brand_cache_requests_total{result=\"hit\"} %d\n", st.Hits)
		fmt.Fprintf(w, "brand_cache_requests_total{result=\"miss\"} %d\n", st.Misses)
		fmt.Fprintf(w, "# HELP brand_cache_entries Brand extraction cache size\n")
		fmt.Fprintf(w, "# TYPE brand_cache_entries gauge\n")
		fmt.Fprintf(w, "brand_cache_entries %d\n", c.Size())
	}

	fmt.Fprintf(w, "# HELP uptime_seconds Process uptime\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.started).Seconds())
}

func (s *Server) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	d, err := parseAsOf(r.URL.Query(), s.deps.Now())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return time.Time{}, false
	}
	return d, true
}

func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	d, ok := s.asOf(w, r)
	if !ok {
		return
	}
	p, err := s.deps.Analytics.Period(d)
	if err != nil {
		s.writeServiceError(w, r, "period", err)
		return
	}
	writeJSON(w, r, http.StatusOK, toPeriodResponse(p))
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	d, ok := s.asOf(w, r)
	if !ok {
		return
	}
	rep, err := s.deps.Analytics.Subscriptions(r.Context(), d)
	if err != nil {
		s.writeServiceError(w, r, log.OpDetect, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSubscriptionsResponse(rep))
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	d, ok := s.asOf(w, r)
	if !ok {
		return
	}
	rep, err := s.deps.Analytics.Forecast(r.Context(), d)
	if err != nil {
		s.writeServiceError(w, r, log.OpForecast, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toForecastResponse(rep))
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Counterparty) == "" {
		writeError(w, r, http.StatusUnprocessableEntity, "counterparty is required")
		return
	}

	res, err := s.deps.Resolver.Preview(r.Context(), req.Counterparty)
	if err != nil {
		s.writeServiceError(w, r, log.OpResolve, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resolveResponse{
		Counterparty: res.Counterparty,
		Brand:        res.Brand,
		Kind:         res.Kind,
		MerchantID:   res.MerchantID,
		MerchantName: res.MerchantName,
	})
}

func (s *Server) handleDedup(w http.ResponseWriter, r *http.Request) {
	dryRun, err := parseBool(r.URL.Query(), "dry_run", false)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := s.deps.Dedup.Run(r.Context(), dryRun)
	if err != nil {
		s.writeServiceError(w, r, log.OpDedup, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toDedupResponse(rep))
}

// writeServiceError maps invalid calendar input to 400 and everything
// else to 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, calendar.ErrInvalidDate) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeInternalError(w, r, op, err)
}
