// Package testutil provides an in-memory EDC service for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Paths served by MockEDC.
const (
	StudiesPath = "/api/v1/edc/studies"
)

// MockEDCResponse defines a canned response for one path.
type MockEDCResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockEDC is a configurable fake EDC service. Without overrides it serves
// paginated listings from the items registered with SetStudies and SetItems,
// accepts record batches and reports job progress.
type MockEDC struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	studies   []map[string]any
	items     map[string]map[string][]map[string]any // study -> resource -> items
	jobStates []string
	jobs      map[string][]string // batch id -> states still to report
	submitted map[string][][]map[string]any

	requestCount      int
	pathCounts        map[string]int
	lastRequestHeader http.Header
}

// NewMockEDC starts a mock EDC server.
func NewMockEDC() *MockEDC {
	mock := &MockEDC{
		handlers:   make(map[string]http.HandlerFunc),
		items:      make(map[string]map[string][]map[string]any),
		jobStates:  []string{"processing", "completed"},
		jobs:       make(map[string][]string),
		submitted:  make(map[string][][]map[string]any),
		pathCounts: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+StudiesPath, mock.handleStudies)
	mux.HandleFunc("GET "+StudiesPath+"/{studyKey}/{resource}", mock.handleList)
	mux.HandleFunc("GET "+StudiesPath+"/{studyKey}/jobs/{batchId}", mock.handleJob)
	mux.HandleFunc("POST "+StudiesPath+"/{studyKey}/records", mock.handleCreateRecords)

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockEDC) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockEDC) Close() {
	m.server.Close()
}

// Reset clears the request counters.
func (m *MockEDC) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.lastRequestHeader = nil
}

// SetHandler overrides the handler for an exact path.
func (m *MockEDC) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for an exact path.
func (m *MockEDC) SetResponse(path string, resp MockEDCResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	})
}

// SetStudies replaces the study listing.
func (m *MockEDC) SetStudies(studies ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.studies = studies
}

// SetItems replaces a study sub-resource listing, e.g. ("S1", "sites", ...).
func (m *MockEDC) SetItems(studyKey, resource string, items ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items[studyKey] == nil {
		m.items[studyKey] = make(map[string][]map[string]any)
	}
	m.items[studyKey][resource] = items
}

// SetJobStates sets the states reported, one per poll, by jobs created
// afterwards. The last state repeats.
func (m *MockEDC) SetJobStates(states ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobStates = states
}

// Submitted returns the record batches posted for a study.
func (m *MockEDC) Submitted(studyKey string) [][]map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]map[string]any(nil), m.submitted[studyKey]...)
}

// RequestCount returns the number of requests served.
func (m *MockEDC) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests for one path.
func (m *MockEDC) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockEDC) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

func (m *MockEDC) handleStudies(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	items := m.studies
	m.mu.RUnlock()

	writePage(w, r, items)
}

func (m *MockEDC) handleList(w http.ResponseWriter, r *http.Request) {
	studyKey := r.PathValue("studyKey")

	m.mu.RLock()
	byResource, ok := m.items[studyKey]
	items := byResource[r.PathValue("resource")]
	m.mu.RUnlock()

	if !ok {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("study %s not found", studyKey))
		return
	}
	writePage(w, r, items)
}

func (m *MockEDC) handleCreateRecords(w http.ResponseWriter, r *http.Request) {
	var records []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION", "body must be an array of records")
		return
	}

	studyKey := r.PathValue("studyKey")
	batchID := uuid.NewString()

	m.mu.Lock()
	m.submitted[studyKey] = append(m.submitted[studyKey], records)
	m.jobs[batchID] = append([]string(nil), m.jobStates...)
	m.mu.Unlock()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":       uuid.NewString(),
		"batchId":     batchID,
		"state":       "created",
		"dateCreated": time.Now().UTC().Format(time.RFC3339),
	})
}

func (m *MockEDC) handleJob(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("batchId")

	m.mu.Lock()
	states, ok := m.jobs[batchID]
	state := ""
	if ok && len(states) > 0 {
		state = states[0]
		if len(states) > 1 {
			m.jobs[batchID] = states[1:]
		}
	}
	m.mu.Unlock()

	if !ok || state == "" {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("job %s not found", batchID))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batchId": batchID,
		"state":   state,
	})
}

// writePage serves one page of items after applying the filter parameter.
func writePage(w http.ResponseWriter, r *http.Request, items []map[string]any) {
	query := r.URL.Query()
	items = applyFilter(items, query.Get("filter"))

	page, _ := strconv.Atoi(query.Get("page"))
	size, err := strconv.Atoi(query.Get("size"))
	if err != nil || size <= 0 {
		size = 25
	}

	totalPages := (len(items) + size - 1) / size
	start := min(page*size, len(items))
	end := min(start+size, len(items))

	data := items[start:end]
	if data == nil {
		data = []map[string]any{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"metadata": map[string]any{
			"status":    "OK",
			"method":    r.Method,
			"path":      r.URL.Path,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
		"pagination": map[string]any{
			"currentPage":   page,
			"size":          size,
			"totalPages":    totalPages,
			"totalElements": len(items),
		},
		"data": data,
	})
}

// applyFilter supports AND-joined equality terms, which is all the client
// emits for Get.
func applyFilter(items []map[string]any, expr string) []map[string]any {
	if expr == "" {
		return items
	}

	var out []map[string]any
	for _, item := range items {
		if matches(item, expr) {
			out = append(out, item)
		}
	}
	return out
}

func matches(item map[string]any, expr string) bool {
	for _, term := range strings.Split(expr, ";") {
		field, value, ok := strings.Cut(term, "==")
		if !ok {
			continue
		}
		if unquoted, err := strconv.Unquote(value); err == nil {
			value = unquoted
		}
		if fmt.Sprint(item[field]) != value {
			return false
		}
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, description string) {
	writeJSON(w, status, map[string]any{
		"metadata": map[string]any{
			"status": http.StatusText(status),
			"method": r.Method,
			"path":   r.URL.Path,
			"error": map[string]any{
				"code":        code,
				"description": description,
			},
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// NewRateLimitResponse creates a 429 response in the EDC error envelope.
func NewRateLimitResponse() MockEDCResponse {
	return MockEDCResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"metadata":{"status":"TOO_MANY_REQUESTS","error":{"code":"RATE_LIMIT","description":"Rate limit exceeded"}}}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewServerErrorResponse creates a 500 response in the EDC error envelope.
func NewServerErrorResponse() MockEDCResponse {
	return MockEDCResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"metadata":{"status":"INTERNAL_SERVER_ERROR","error":{"code":"SERVER","description":"Internal server error"}}}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
