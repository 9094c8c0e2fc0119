package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/edc-client/internal/testutil"
	"github.com/Sternrassler/edc-client/pkg/client"
	"github.com/Sternrassler/edc-client/pkg/edc"
	"github.com/Sternrassler/edc-client/pkg/models"
)

func setupProxy(t *testing.T, rdb *redis.Client) (*testutil.MockEDC, http.Handler) {
	t.Helper()

	mock := testutil.NewMockEDC()
	t.Cleanup(mock.Close)
	mock.SetStudies(map[string]any{"studyKey": "S1"}, map[string]any{"studyKey": "S2"})
	mock.SetItems("S1", "sites",
		map[string]any{"siteId": 1, "siteName": "Berlin"},
		map[string]any{"siteId": 2, "siteName": "Paris"},
		map[string]any{"siteId": 3, "siteName": "Rome"},
	)

	cfg := client.DefaultConfig("proxy-api-key", "proxy-security-key")
	cfg.BaseURL = mock.URL()
	cfg.Retries = 0

	sdk, err := edc.New(cfg)
	require.NoError(t, err)

	return mock, newServer(sdk, rdb).routes()
}

func get(t *testing.T, handler http.Handler, target string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready_without_redis", func(t *testing.T) {
		_, handler := setupProxy(t, nil)

		status, body := get(t, handler, "/ready")
		if status != http.StatusOK {
			t.Errorf("Expected status 200, got %d", status)
		}
		if body != "OK" {
			t.Errorf("Expected body 'OK', got %s", body)
		}
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		rdb := redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
			MaxRetries:  -1,
		})
		defer rdb.Close()

		_, handler := setupProxy(t, rdb)

		status, _ := get(t, handler, "/ready")
		if status != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", status)
		}
	})
}

func TestStudiesEndpoint(t *testing.T) {
	mock, handler := setupProxy(t, nil)

	status, body := get(t, handler, "/studies")
	require.Equal(t, http.StatusOK, status, body)

	var resp listResponse[models.Study]
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "S1", resp.Data[0].StudyKey)

	// Served from the endpoint cache.
	_, _ = get(t, handler, "/studies")
	assert.Equal(t, 1, mock.PathCount(testutil.StudiesPath))

	_, _ = get(t, handler, "/studies?refresh=true")
	assert.Equal(t, 2, mock.PathCount(testutil.StudiesPath))
}

func TestStudyResourceEndpoint(t *testing.T) {
	mock, handler := setupProxy(t, nil)

	status, body := get(t, handler, "/studies/S1/sites")
	require.Equal(t, http.StatusOK, status, body)

	var resp listResponse[models.Site]
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, 3, resp.Count)

	t.Run("filter", func(t *testing.T) {
		status, body := get(t, handler, "/studies/S1/sites?siteName=Paris")
		require.Equal(t, http.StatusOK, status, body)

		var filtered listResponse[models.Site]
		require.NoError(t, json.Unmarshal([]byte(body), &filtered))
		require.Equal(t, 1, filtered.Count)
		assert.Equal(t, 2, filtered.Data[0].SiteID)
	})

	t.Run("unknown_resource", func(t *testing.T) {
		before := mock.RequestCount()
		status, _ := get(t, handler, "/studies/S1/widgets")
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, before, mock.RequestCount())
	})

	t.Run("unknown_study", func(t *testing.T) {
		status, body := get(t, handler, "/studies/NOPE/sites")
		assert.Equal(t, http.StatusNotFound, status)
		assert.Contains(t, body, "study NOPE not found")
	})

	t.Run("upstream_error", func(t *testing.T) {
		mock.SetResponse("/api/v1/edc/studies/S1/forms", testutil.NewServerErrorResponse())
		status, _ := get(t, handler, "/studies/S1/forms")
		assert.Equal(t, http.StatusBadGateway, status)
	})

	t.Run("rate_limited", func(t *testing.T) {
		mock.SetResponse("/api/v1/edc/studies/S1/variables", testutil.NewRateLimitResponse())
		status, _ := get(t, handler, "/studies/S1/variables")
		assert.Equal(t, http.StatusTooManyRequests, status)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	_, handler := setupProxy(t, nil)

	// Make one upstream request so request metrics carry a sample.
	_, _ = get(t, handler, "/studies")

	status, body := get(t, handler, "/metrics")
	if status != http.StatusOK {
		t.Errorf("Expected status 200, got %d", status)
	}
	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	if !strings.Contains(body, "edc_requests_total") {
		t.Error("Expected metrics output to contain edc_requests_total")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind client.ErrorKind
		want int
	}{
		{client.KindNotFound, http.StatusNotFound},
		{client.KindValidation, http.StatusBadRequest},
		{client.KindConfiguration, http.StatusBadRequest},
		{client.KindRateLimit, http.StatusTooManyRequests},
		{client.KindServer, http.StatusBadGateway},
		{client.KindAuthentication, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := statusFor(client.NewError(tt.kind, "x")); got != tt.want {
				t.Errorf("statusFor(%s) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}

	if got := statusFor(io.EOF); got != http.StatusInternalServerError {
		t.Errorf("statusFor(plain) = %d, want 500", got)
	}
}
