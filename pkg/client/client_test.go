package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) *Client {
	t.Helper()

	cfg := DefaultConfig("test-api-key", "test-security-key")
	cfg.BaseURL = baseURL
	cfg.BackoffFactor = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantKind ErrorKind
	}{
		{
			name:   "valid config",
			config: DefaultConfig("key", "secret"),
		},
		{
			name:     "missing api key",
			config:   DefaultConfig("", "secret"),
			wantKind: KindConfiguration,
		},
		{
			name:     "missing security key",
			config:   DefaultConfig("key", ""),
			wantKind: KindConfiguration,
		},
		{
			name:     "invalid base url",
			config:   Config{APIKey: "key", SecurityKey: "secret", BaseURL: "::not a url"},
			wantKind: KindConfiguration,
		},
		{
			name:   "empty base url uses default",
			config: Config{APIKey: "key", SecurityKey: "secret"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)

			if tt.wantKind != "" {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if KindOf(err) != tt.wantKind {
					t.Errorf("KindOf(err) = %s, want %s", KindOf(err), tt.wantKind)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c == nil {
				t.Fatal("Expected client but got nil")
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{APIKey: "key", SecurityKey: "secret", BaseURL: "http://localhost/", Retries: -4, BackoffFactor: -time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if c.BaseURL() != "http://localhost" {
		t.Errorf("BaseURL() = %q, want trailing slash trimmed", c.BaseURL())
	}
	if c.config.Retries != 0 {
		t.Errorf("Retries = %d, want clamped to 0", c.config.Retries)
	}
	if c.config.BackoffFactor != 0 {
		t.Errorf("BackoffFactor = %v, want clamped to 0", c.config.BackoffFactor)
	}
	if _, ok := c.policy.(DefaultRetryPolicy); !ok {
		t.Errorf("policy = %T, want DefaultRetryPolicy", c.policy)
	}
}

func TestDo_Headers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(HeaderAPIKey); got != "test-api-key" {
			t.Errorf("%s = %q", HeaderAPIKey, got)
		}
		if got := r.Header.Get(HeaderSecurityKey); got != "test-security-key" {
			t.Errorf("%s = %q", HeaderSecurityKey, got)
		}
		if r.Header.Get(HeaderRequestID) == "" {
			t.Errorf("%s header missing", HeaderRequestID)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "edc-client-go/0.1.0" {
			t.Errorf("User-Agent = %q", got)
		}
		if r.URL.Path != "/api/v1/edc/studies" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("page = %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)

	resp, err := c.Get(context.Background(), "/api/v1/edc/studies", url.Values{"page": {"2"}})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"data":[]}` {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestDo_PostBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}

		var body []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(body) != 1 || body[0]["formKey"] != "F1" {
			t.Errorf("body = %v", body)
		}

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"batchId":"b-1","state":"created"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)

	resp, err := c.Post(context.Background(), "/api/v1/edc/studies/S1/records", []map[string]any{{"formKey": "F1"}})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	var job struct {
		BatchID string `json:"batchId"`
	}
	if err := resp.JSON(&job); err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	if job.BatchID != "b-1" {
		t.Errorf("BatchID = %q, want b-1", job.BatchID)
	}
}

func TestDo_StatusErrors(t *testing.T) {
	tests := []struct {
		status   int
		wantKind ErrorKind
		sentinel error
	}{
		{400, KindValidation, ErrValidation},
		{401, KindAuthentication, ErrAuthentication},
		{403, KindAuthorization, ErrAuthorization},
		{404, KindNotFound, ErrNotFound},
		{409, KindConflict, ErrConflict},
		{429, KindRateLimit, ErrRateLimit},
		{500, KindServer, ErrServer},
		{418, KindGeneric, ErrGeneric},
	}

	for _, tt := range tests {
		t.Run(string(tt.wantKind), func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"metadata":{"error":{"description":"nope"}}}`))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, nil)

			_, err := c.Get(context.Background(), "/x", nil)

			var edcErr *Error
			if !errors.As(err, &edcErr) {
				t.Fatalf("error = %v, want *Error", err)
			}
			if edcErr.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", edcErr.Kind, tt.wantKind)
			}
			if edcErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", edcErr.StatusCode, tt.status)
			}
			if edcErr.Message != "nope" {
				t.Errorf("Message = %q, want nope", edcErr.Message)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(err, %v) = false", tt.sentinel)
			}
			if calls.Load() != 1 {
				t.Errorf("calls = %d, default policy must not retry statuses", calls.Load())
			}
		})
	}
}

func TestDo_PolicyDeclinesFirstDecision(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var decisions atomic.Int32
	c := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.Retries = 5
		cfg.RetryPolicy = RetryPolicyFunc(func(RetryState) bool {
			decisions.Add(1)
			return false
		})
	})

	_, err := c.Get(context.Background(), "/x", nil)
	if !errors.Is(err, ErrServer) {
		t.Fatalf("error = %v, want server error", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if decisions.Load() != 1 {
		t.Errorf("decisions = %d, want 1", decisions.Load())
	}
}

func TestDo_PolicyExhaustsRetries(t *testing.T) {
	cause := errors.New("boom")
	var calls atomic.Int32

	var attempts []int
	c := newTestClient(t, "http://edc.test", func(cfg *Config) {
		cfg.Retries = 3
		cfg.HTTPClient = &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, cause
		})}
		cfg.RetryPolicy = RetryPolicyFunc(func(state RetryState) bool {
			attempts = append(attempts, state.Attempt)
			return true
		})
	})

	_, err := c.Get(context.Background(), "/x", nil)

	if calls.Load() != 4 {
		t.Errorf("calls = %d, want retries+1 = 4", calls.Load())
	}
	if len(attempts) != 3 || attempts[0] != 0 || attempts[2] != 2 {
		t.Errorf("policy consulted for attempts %v, want [0 1 2]", attempts)
	}
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("error = %v, want request failed", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error = %v, want final cause preserved", err)
	}
}

func TestDo_ZeroRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, "http://edc.test", func(cfg *Config) {
		cfg.Retries = -1
		cfg.HTTPClient = &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
		})}
	})

	_, err := c.Get(context.Background(), "/x", nil)
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("error = %v, want request failed", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestDo_DefaultPolicyRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, "http://edc.test", func(cfg *Config) {
		cfg.Retries = 2
		cfg.HTTPClient = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			if calls.Add(1) < 3 {
				return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
			}
			rec := httptest.NewRecorder()
			rec.WriteString(`{"ok":true}`)
			resp := rec.Result()
			resp.Request = r
			return resp, nil
		})}
	})

	resp, err := c.Get(context.Background(), "/x", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Body = %q", resp.Body)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestDo_RetryOnStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.RetryPolicy = RetryOnStatus(http.StatusServiceUnavailable)
	})

	if _, err := c.Get(context.Background(), "/x", nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestDo_PerRequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.Timeout = 20 * time.Millisecond
		cfg.Retries = 0
	})

	_, err := c.Get(context.Background(), "/slow", nil)
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("error = %v, want request failed", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded cause", err)
	}
}

func TestDo_CanceledDuringBackoff(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, "http://edc.test", func(cfg *Config) {
		cfg.Retries = 5
		cfg.BackoffFactor = time.Hour
		cfg.HTTPClient = &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, io.ErrUnexpectedEOF
		})}
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	start := time.Now()
	_, err := c.Get(ctx, "/x", nil)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Do ignored cancellation during backoff")
	}
	// Attempt 0 retries immediately, attempt 1 sleeps for an hour.
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

type countingWaiter struct {
	n atomic.Int32
}

func (w *countingWaiter) Wait(ctx context.Context) error {
	w.n.Add(1)
	return ctx.Err()
}

func TestDo_LimiterGatesEveryAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	waiter := &countingWaiter{}
	c := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.Limiter = waiter
		cfg.RetryPolicy = RetryOnStatus(http.StatusTooManyRequests)
	})

	if _, err := c.Get(context.Background(), "/x", nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if waiter.n.Load() != 2 {
		t.Errorf("limiter waits = %d, want 2", waiter.n.Load())
	}
}

func TestDoAsync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"async":true}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)

	future := c.DoAsync(context.Background(), Request{Method: http.MethodGet, Path: "/x"})
	resp, err := future.Await(context.Background())
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if string(resp.Body) != `{"async":true}` {
		t.Errorf("Body = %q", resp.Body)
	}

	select {
	case <-future.Done():
	default:
		t.Error("Done() should be closed after Await returned")
	}
}

func TestFuture_AwaitContext(t *testing.T) {
	release := make(chan struct{})
	future := Go(context.Background(), func(context.Context) (int, error) {
		<-release
		return 42, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := future.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Await() error = %v, want deadline exceeded", err)
	}

	close(release)
	v, err := future.Await(context.Background())
	if err != nil || v != 42 {
		t.Errorf("Await() = %d, %v; want 42, nil", v, err)
	}
}

func TestEndpointLabel(t *testing.T) {
	tests := map[string]string{
		"/api/v1/edc/studies":               "studies",
		"/api/v1/edc/studies/S1":            "study",
		"/api/v1/edc/studies/S1/sites":      "sites",
		"/api/v1/edc/studies/S1/jobs/b-1":   "jobs",
		"/api/v1/edc/studies/S%2F1/records": "records",
		"/api/v1/edc/health":                "other",
		"":                                  "other",
	}

	for path, want := range tests {
		if got := endpointLabel(path); got != want {
			t.Errorf("endpointLabel(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestDo_CountsRequestsByEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	counter := edcRequestsTotal.WithLabelValues("variables", "200")
	before := testutil.ToFloat64(counter)

	for _, studyKey := range []string{"S1", "S2"} {
		if _, err := c.Get(context.Background(), "/api/v1/edc/studies/"+studyKey+"/variables", nil); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("edc_requests_total{endpoint=variables} grew by %v, want 2", got)
	}
}
