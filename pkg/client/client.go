// Package client provides the core EDC HTTP executor with authentication,
// per-request timeouts, pluggable retry policy and typed errors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/edc-client/pkg/logging"
)

// Prometheus metrics for EDC client operations.
var (
	edcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edc_requests_total",
		Help: "Total EDC requests by endpoint and status",
	}, []string{"endpoint", "status"})

	edcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "edc_request_duration_seconds",
		Help:    "EDC request duration in seconds including retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method"})

	edcErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edc_errors_total",
		Help: "Total EDC errors by kind",
	}, []string{"kind"})
)

// Authentication headers attached to every request.
const (
	HeaderAPIKey      = "x-api-key"
	HeaderSecurityKey = "x-imn-security-key"
	HeaderRequestID   = "X-Request-ID"
)

// DefaultBaseURL is the production EDC API host.
const DefaultBaseURL = "https://edc.prod.imednetapi.com"

// Waiter gates each attempt, typically a client-side rate limiter.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the EDC service, without trailing slash.
	BaseURL string

	// APIKey and SecurityKey form the authentication header pair (REQUIRED).
	APIKey      string
	SecurityKey string

	// UserAgent header.
	UserAgent string

	// Timeout bounds a single attempt. It is independent of any caller deadline.
	Timeout time.Duration

	// Retries is the number of retries after the first attempt. Values below
	// zero are treated as zero.
	Retries int

	// BackoffFactor is the base delay for the exponential backoff.
	BackoffFactor time.Duration

	// RetryPolicy decides which attempts are retried (default: DefaultRetryPolicy).
	RetryPolicy RetryPolicy

	// HTTPClient overrides the transport (for testing).
	HTTPClient *http.Client

	// Limiter is consulted before every attempt when set.
	Limiter Waiter
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey, securityKey string) Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		APIKey:        apiKey,
		SecurityKey:   securityKey,
		UserAgent:     "edc-client-go/0.1.0",
		Timeout:       30 * time.Second,
		Retries:       3,
		BackoffFactor: 1 * time.Second,
		RetryPolicy:   DefaultRetryPolicy{},
	}
}

// Request describes one logical API operation.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-encoded when non-nil.
	Body any
}

// Response is a fully-read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON unmarshals the response body into target.
func (r *Response) JSON(target any) error {
	if err := json.Unmarshal(r.Body, target); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Client is the EDC request executor. It holds no mutable state between
// calls and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	policy     RetryPolicy
	logger     zerolog.Logger
}

// New creates a new EDC client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.SecurityKey == "" {
		return nil, NewError(KindConfiguration, "api key and security key are required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, &Error{Kind: KindConfiguration, Message: "invalid base url", Err: err}
	}

	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.BackoffFactor < 0 {
		cfg.BackoffFactor = 0
	}

	policy := cfg.RetryPolicy
	if policy == nil {
		policy = DefaultRetryPolicy{}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		config:     cfg,
		policy:     policy,
		logger:     logging.NewLogger("edc-client"),
	}, nil
}

// Do performs one logical operation with bounded retry.
//
// Each attempt's outcome is offered to the retry policy while attempts
// remain. The delay before retry k+1 is Backoff(BackoffFactor, k). A
// transport error that is not retried is returned as KindRequestFailed
// wrapping the cause; a non-2xx status is returned as the kind given by
// ClassifyStatus.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()
	defer func() {
		edcRequestDuration.WithLabelValues(req.Method).Observe(time.Since(startTime).Seconds())
	}()

	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, &Error{Kind: KindConfiguration, Message: "encode request body", Err: err}
		}
	}

	requestID := uuid.NewString()
	logger := c.logger.With().
		Str("method", req.Method).
		Str("path", req.Path).
		Str("request_id", requestID).
		Logger()

	for attempt := 0; ; attempt++ {
		if c.config.Limiter != nil {
			if err := c.config.Limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		logger.Debug().Int("attempt", attempt).Msg("Executing EDC request")

		resp, err := c.attempt(ctx, req, payload, requestID)

		if ctx.Err() == nil && attempt < c.config.Retries {
			state := RetryState{Attempt: attempt, Err: err, Response: resp}
			if c.policy.ShouldRetry(state) {
				delay := Backoff(c.config.BackoffFactor, attempt)
				edcRetriesTotal.WithLabelValues(req.Method).Inc()
				edcRetryBackoffSeconds.Observe(delay.Seconds())

				event := logger.Warn().Int("attempt", attempt).Dur("backoff", delay)
				if err != nil {
					event = event.Err(err)
				} else {
					event = event.Int("status", resp.StatusCode)
				}
				event.Msg("Retrying EDC request after backoff")

				if err := Sleep(ctx, delay); err != nil {
					return nil, fmt.Errorf("retry backoff interrupted: %w", err)
				}
				continue
			}
		} else if attempt > 0 && attempt == c.config.Retries && (err != nil || !isSuccess(resp)) {
			edcRetryExhaustedTotal.WithLabelValues(req.Method).Inc()
		}

		return c.finish(logger, req, attempt, resp, err)
	}
}

// attempt performs a single HTTP round trip bounded by the per-request timeout.
func (c *Client) attempt(ctx context.Context, req Request, payload []byte, requestID string) (*Response, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set(HeaderAPIKey, c.config.APIKey)
	httpReq.Header.Set(HeaderSecurityKey, c.config.SecurityKey)
	httpReq.Header.Set(HeaderRequestID, requestID)
	httpReq.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       data,
	}, nil
}

// endpointLabel reduces a request path to the resource it addresses so study
// keys and batch ids stay out of metric labels:
//
//	/api/v1/edc/studies           -> studies
//	/api/v1/edc/studies/S1        -> study
//	/api/v1/edc/studies/S1/sites  -> sites
//	/api/v1/edc/studies/S1/jobs/b -> jobs
func endpointLabel(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		if segment != "studies" {
			continue
		}
		switch rest := segments[i+1:]; len(rest) {
		case 0:
			return "studies"
		case 1:
			return "study"
		default:
			return rest[1]
		}
	}
	return "other"
}

// finish maps the final attempt's outcome to the caller-visible result.
func (c *Client) finish(logger zerolog.Logger, req Request, attempt int, resp *Response, err error) (*Response, error) {
	if err != nil {
		edcRequestsTotal.WithLabelValues(endpointLabel(req.Path), "network_error").Inc()
		edcErrorsTotal.WithLabelValues(string(KindRequestFailed)).Inc()
		logger.Error().Err(err).Int("attempts", attempt+1).Msg("EDC request failed")

		return nil, &Error{
			Kind:    KindRequestFailed,
			Message: fmt.Sprintf("%s %s failed after %d attempt(s)", req.Method, req.Path, attempt+1),
			Err:     err,
		}
	}

	edcRequestsTotal.WithLabelValues(endpointLabel(req.Path), strconv.Itoa(resp.StatusCode)).Inc()

	if !isSuccess(resp) {
		apiErr := statusError(resp)
		edcErrorsTotal.WithLabelValues(string(apiErr.Kind)).Inc()
		logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_kind", string(apiErr.Kind)).
			Msg("EDC request error")
		return nil, apiErr
	}

	return resp, nil
}

func isSuccess(resp *Response) bool {
	return resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// DoAsync starts Do on its own goroutine.
func (c *Client) DoAsync(ctx context.Context, req Request) *Future[*Response] {
	return Go(ctx, func(ctx context.Context) (*Response, error) {
		return c.Do(ctx, req)
	})
}

// BaseURL returns the normalized service URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}
