// Package ratelimit gates outgoing EDC requests with a client-side token
// bucket so a burst of list, poll and retry traffic stays within the
// service's request allowance.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/edc-client/pkg/logging"
)

// Prometheus metrics for client-side rate limiting.
var (
	edcRateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edc_rate_limit_waits_total",
		Help: "Total number of attempts delayed by the client-side rate limiter",
	})

	edcRateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edc_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a rate limit token",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// Config holds limiter configuration.
type Config struct {
	// RequestsPerSecond is the sustained rate. Zero or less disables limiting.
	RequestsPerSecond float64

	// Burst is the number of requests allowed at once (minimum 1).
	Burst int
}

// DefaultConfig returns a conservative default.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Burst:             5,
	}
}

// Limiter is a token bucket satisfying client.Waiter.
type Limiter struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logging.NewLogger("ratelimit"),
	}
}

// Wait blocks until a request may proceed or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.limiter.Allow() {
		return nil
	}

	start := time.Now()
	edcRateLimitWaitsTotal.Inc()

	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	waited := time.Since(start)
	edcRateLimitWaitSeconds.Observe(waited.Seconds())
	l.logger.Debug().Dur("waited", waited).Msg("Request throttled by client-side limiter")

	return nil
}

// SetRate changes the sustained rate, e.g. after the service answers 429.
func (l *Limiter) SetRate(requestsPerSecond float64) {
	if requestsPerSecond <= 0 {
		l.limiter.SetLimit(rate.Inf)
		return
	}
	l.limiter.SetLimit(rate.Limit(requestsPerSecond))
}

// Rate returns the current sustained rate, +Inf when unlimited.
func (l *Limiter) Rate() float64 {
	limit := l.limiter.Limit()
	if limit == rate.Inf {
		return math.Inf(1)
	}
	return float64(limit)
}
