// Package testutil provides testing utilities for the Mattermost client.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// APIPrefix is the path every Mattermost v4 endpoint lives under.
const APIPrefix = "/api/v4"

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request received by the mock server. Path is
// relative to APIPrefix.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// MockServer is a configurable fake Mattermost server for testing.
type MockServer struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	requests         []RecordedRequest
	conditionalCount int
}

// NewMockServer creates a new mock Mattermost server.
func NewMockServer() *MockServer {
	mock := &MockServer{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		path := strings.TrimPrefix(r.URL.Path, APIPrefix)

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method: r.Method,
			Path:   path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.conditionalCount++
		}
		handler, exists := mock.handlers[r.Method+" "+path]
		if !exists {
			handler, exists = mock.handlers[path]
		}
		mock.mu.Unlock()

		if !strings.HasPrefix(r.URL.Path, APIPrefix+"/") || !exists {
			writeResponse(w, NewAppErrorResponse(http.StatusNotFound,
				"api.context.404.app_error", "Sorry, we could not find the page."))
			return
		}

		handler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockServer) URL() string {
	return m.server.URL
}

// Domain returns the host:port of the server, usable as a client domain
// with TLS disabled.
func (m *MockServer) Domain() string {
	return strings.TrimPrefix(m.server.URL, "http://")
}

// APIURL returns the base URL of the v4 API.
func (m *MockServer) APIURL() string {
	return m.server.URL + APIPrefix
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	m.server.Close()
}

// Reset clears all recorded requests.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.conditionalCount = 0
}

// SetHandler sets a handler for an API-relative path, for any method.
func (m *MockServer) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// Handle sets a handler for a method and API-relative path. It takes
// precedence over a handler set with SetHandler.
func (m *MockServer) Handle(method, path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+" "+path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockServer) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		writeResponse(w, resp)
	})
}

// SetJSON configures a 200 JSON response for a path.
func (m *MockServer) SetJSON(path, body string) {
	m.SetResponse(path, NewJSONResponse(body))
}

// Requests returns a copy of every request received so far.
func (m *MockServer) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// LastRequest returns the most recent request, or false if there was none.
func (m *MockServer) LastRequest() (RecordedRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return RecordedRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockServer) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockServer) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func rateLimitHeaders(remaining int) map[string]string {
	return map[string]string{
		"X-Ratelimit-Limit":     "10",
		"X-Ratelimit-Remaining": strconv.Itoa(remaining),
		"X-Ratelimit-Reset":     "1",
		"Content-Type":          "application/json",
	}
}

// NewJSONResponse creates a 200 OK JSON response with healthy rate limit headers.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    rateLimitHeaders(9),
	}
}

// NewAppErrorResponse creates an error response with a Mattermost AppError body.
func NewAppErrorResponse(status int, id, message string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body: fmt.Sprintf(`{"id":%q,"message":%q,"detailed_error":"","request_id":"req-%d","status_code":%d}`,
			id, message, status, status),
		Headers: rateLimitHeaders(9),
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	resp := NewAppErrorResponse(http.StatusTooManyRequests,
		"api.context.rate_limit.app_error", "Too many requests.")
	resp.Headers = rateLimitHeaders(0)
	return resp
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return NewAppErrorResponse(http.StatusInternalServerError,
		"app.internal_error", "An internal error occurred.")
}

// NewConditionalHandler creates a handler that responds with 304 when the
// request carries etag in If-None-Match.
func NewConditionalHandler(etag string, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for key, value := range rateLimitHeaders(9) {
			w.Header().Set(key, value)
		}

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}

// NewPagedHandler serves pages[i] for ?page=i and an empty array past the end.
func NewPagedHandler(pages ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		body := "[]"
		if page >= 0 && page < len(pages) {
			body = pages[page]
		}
		writeResponse(w, NewJSONResponse(body))
	}
}

// NewPostsHandler serves pages keyed by the before cursor and an empty
// ordered response for any other cursor.
func NewPostsHandler(pages map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Query().Get("before")]
		if !ok {
			body = `{"order":[],"posts":{}}`
		}
		writeResponse(w, NewJSONResponse(body))
	}
}
