// Package metrics is the reference for the Prometheus metrics exported by the
// EDC client. Collectors live in the packages that update them (client,
// cache, endpoint, schema, jobs, ratelimit) and register through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the EDC client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - edc_requests_total{endpoint, status} (Counter): Requests by resource and final status ("network_error" for transport failures)
//   - edc_request_duration_seconds{method} (Histogram): Logical request duration including retries
//   - edc_errors_total{kind} (Counter): Errors returned to callers by kind
//
// Retry Metrics (pkg/client):
//   - edc_retries_total{method} (Counter): Retry attempts
//   - edc_retry_backoff_seconds (Histogram): Backoff slept before a retry
//   - edc_retry_exhausted_total{method} (Counter): Requests that failed on their last allowed attempt
//
// Cache Metrics (pkg/cache):
//   - edc_cache_hits_total{backend} (Counter): List cache hits
//   - edc_cache_misses_total{backend} (Counter): List cache misses
//   - edc_cache_errors_total{backend, operation} (Counter): Backend failures
//
// Pagination Metrics (pkg/pagination):
//   - edc_pages_fetched_total (Counter): Listing pages fetched
//
// Endpoint Metrics (pkg/endpoint):
//   - edc_list_calls_total{resource, source} (Counter): List outcomes by source (cache, network)
//   - edc_list_items (Histogram): Items returned from the network per List
//
// Schema Metrics (pkg/schema):
//   - edc_schema_refreshes_total (Counter): Snapshot rebuilds
//   - edc_schema_validation_failures_total{kind} (Counter): Rejected records by error kind
//
// Job Metrics (pkg/jobs):
//   - edc_job_polls_total (Counter): Job status fetches
//   - edc_job_outcomes_total{outcome} (Counter): Finished waits by outcome (completed, failed, cancelled, timeout)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - edc_rate_limit_waits_total (Counter): Attempts delayed by the client-side limiter
//   - edc_rate_limit_wait_seconds (Histogram): Time spent waiting for a token
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(edc_cache_hits_total[5m])) /
//   (sum(rate(edc_cache_hits_total[5m])) + sum(rate(edc_cache_misses_total[5m])))
//
//   # Retry Rate
//   rate(edc_retries_total[5m]) / rate(edc_requests_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(edc_request_duration_seconds_bucket[5m]))
//
//   # Job Timeouts
//   increase(edc_job_outcomes_total{outcome="timeout"}[1h])
