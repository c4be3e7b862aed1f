// Package http exposes the analytics and merchant operations as a small
// JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// Service ports, satisfied by the types in internal/services.
type (
	Analytics interface {
		Period(date time.Time) (services.PeriodInfo, error)
		Subscriptions(ctx context.Context, asOf time.Time) (services.SubscriptionReport, error)
		Forecast(ctx context.Context, asOf time.Time) (services.ForecastReport, error)
	}

	MerchantResolver interface {
		Preview(ctx context.Context, counterparty string) (services.ResolveResult, error)
	}

	Deduplicator interface {
		Run(ctx context.Context, dryRun bool) (services.DedupReport, error)
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}

	// StatsSource reports counters of a cache shown on /metrics.
	StatsSource interface {
		Stats() cache.Stats
		Size() int
	}
)

// Deps are the collaborators of the server. DB and BrandCache are optional.
type Deps struct {
	Analytics  Analytics
	Resolver   MerchantResolver
	Dedup      Deduplicator
	DB         Pinger
	BrandCache StatsSource
	Logger     *log.Logger
	// RateLimit is the number of POST requests allowed per client per
	// minute.
	RateLimit int
	// Now defaults to time.Now; the default "date" of every query.
	Now func() time.Time
}

type Server struct {
	http.Server
	deps    Deps
	limiter *rateLimiter
	started time.Time

	suspicious   int64
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	s := &Server{
		deps:    deps,
		limiter: newRateLimiter(deps.RateLimit),
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/period", s.handlePeriod)
	mux.HandleFunc("GET /api/subscriptions", s.handleSubscriptions)
	mux.HandleFunc("GET /api/forecast", s.handleForecast)
	mux.HandleFunc("POST /api/merchants/resolve", s.handleResolve)
	mux.HandleFunc("POST /api/merchants/dedup", s.handleDedup)

	var h http.Handler = mux
	h = s.withSecurity(h)
	h = log.AccessLog(h)
	h = log.RequestIDMiddleware(h)
	h = log.Middleware(deps.Logger)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops background routines and gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
