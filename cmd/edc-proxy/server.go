package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/edc-client/pkg/client"
	"github.com/Sternrassler/edc-client/pkg/edc"
	"github.com/Sternrassler/edc-client/pkg/endpoint"
	"github.com/Sternrassler/edc-client/pkg/logging"
	"github.com/Sternrassler/edc-client/pkg/metrics"
)

// requestTimeout bounds one proxied listing including every page.
const requestTimeout = 60 * time.Second

// refreshParam forces a cache bypass; every other query parameter is a filter.
const refreshParam = "refresh"

// pinger is the part of a redis client readiness needs.
type pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

type server struct {
	sdk    *edc.SDK
	redis  pinger
	logger zerolog.Logger
}

func newServer(sdk *edc.SDK, rdb *redis.Client) *server {
	s := &server{sdk: sdk, logger: logging.NewLogger("edc-proxy")}
	if rdb != nil {
		s.redis = rdb
	}
	return s
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(s.redis))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /studies", listHandler(s, s.sdk.Studies().List))
	mux.HandleFunc("GET /studies/{studyKey}/{resource}", s.studyResourceHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func readyHandler(rdb pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rdb != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := rdb.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

func (s *server) studyResourceHandler(w http.ResponseWriter, r *http.Request) {
	switch resource := r.PathValue("resource"); resource {
	case "sites":
		listHandler(s, s.sdk.Sites().List)(w, r)
	case "subjects":
		listHandler(s, s.sdk.Subjects().List)(w, r)
	case "forms":
		listHandler(s, s.sdk.Forms().List)(w, r)
	case "variables":
		listHandler(s, s.sdk.Variables().List)(w, r)
	case "records":
		listHandler(s, s.sdk.Records().List)(w, r)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown resource %q", resource))
	}
}

// listResponse is the body of every successful listing.
type listResponse[T any] struct {
	Count int `json:"count"`
	Data  []T `json:"data"`
}

func listHandler[T any](s *server, list func(context.Context, endpoint.ListOptions) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		opts := endpoint.ListOptions{StudyKey: r.PathValue("studyKey")}
		for key, values := range r.URL.Query() {
			if key == refreshParam {
				opts.Refresh, _ = strconv.ParseBool(values[0])
				continue
			}
			if opts.Filters == nil {
				opts.Filters = make(map[string]any)
			}
			if len(values) == 1 {
				opts.Filters[key] = values[0]
			} else {
				alternatives := make([]any, len(values))
				for i, v := range values {
					alternatives[i] = v
				}
				opts.Filters[key] = alternatives
			}
		}

		items, err := list(ctx, opts)
		if err != nil {
			status := statusFor(err)
			s.logger.Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Listing failed")
			writeError(w, status, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, listResponse[T]{Count: len(items), Data: items})
	}
}

// statusFor maps an SDK error to the proxy's response status.
func statusFor(err error) int {
	var apiErr *client.Error
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}

	switch apiErr.Kind {
	case client.KindNotFound:
		return http.StatusNotFound
	case client.KindValidation, client.KindConfiguration:
		return http.StatusBadRequest
	case client.KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
