package client

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/url"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	edcRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edc_retries_total",
		Help: "Total number of retry attempts by HTTP method",
	}, []string{"method"})

	edcRetryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edc_retry_backoff_seconds",
		Help:    "Backoff duration slept before a retry",
		Buckets: []float64{0, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	edcRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edc_retry_exhausted_total",
		Help: "Total number of requests that failed after exhausting all retries",
	}, []string{"method"})
)

// RetryState is the outcome of one attempt, handed to a RetryPolicy.
// Exactly one of Err and Response is set.
type RetryState struct {
	// Attempt is zero-based.
	Attempt  int
	Err      error
	Response *Response
}

// RetryPolicy decides whether an attempt should be retried.
// Implementations must be safe for concurrent use.
type RetryPolicy interface {
	ShouldRetry(state RetryState) bool
}

// RetryPolicyFunc adapts a function to RetryPolicy.
type RetryPolicyFunc func(state RetryState) bool

// ShouldRetry calls f(state).
func (f RetryPolicyFunc) ShouldRetry(state RetryState) bool {
	return f(state)
}

// DefaultRetryPolicy retries transient network failures only. HTTP error
// statuses are never retried.
type DefaultRetryPolicy struct{}

// ShouldRetry implements RetryPolicy.
func (DefaultRetryPolicy) ShouldRetry(state RetryState) bool {
	return state.Err != nil && IsTransient(state.Err)
}

// RetryOnStatus returns a policy that retries transient network failures and
// the given response statuses.
func RetryOnStatus(statuses ...int) RetryPolicy {
	set := make(map[int]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return RetryPolicyFunc(func(state RetryState) bool {
		if state.Err != nil {
			return IsTransient(state.Err)
		}
		if state.Response == nil {
			return false
		}
		_, ok := set[state.Response.StatusCode]
		return ok
	})
}

// IsTransient reports whether err is a connection or timeout failure.
// Caller cancellation is not transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	// *url.Error satisfies net.Error itself, so look at what it wraps.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Backoff returns the delay slept after the given attempt before the next one.
// Attempt 0 is retried immediately. For attempt k >= 1 the base delay is
// factor * 2^(k-1), jittered uniformly into [0.5*base, 1.5*base].
func Backoff(factor time.Duration, attempt int) time.Duration {
	if attempt <= 0 || factor <= 0 {
		return 0
	}

	base := float64(factor) * math.Pow(2, float64(attempt-1))
	jittered := base * (0.5 + rand.Float64())

	return time.Duration(jittered)
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
