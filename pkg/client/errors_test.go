package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{
			name:       "client error should not retry",
			errorClass: ErrorClassClient,
			expected:   false,
		},
		{
			name:       "server error should retry",
			errorClass: ErrorClassServer,
			expected:   true,
		},
		{
			name:       "rate limit should retry",
			errorClass: ErrorClassRateLimit,
			expected:   true,
		},
		{
			name:       "network error should retry",
			errorClass: ErrorClassNetwork,
			expected:   true,
		},
		{
			name:       "empty error class should not retry",
			errorClass: "",
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := shouldRetry(tt.errorClass)
			if result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "server message and id",
			apiError: &APIError{
				StatusCode: 403,
				ErrorClass: ErrorClassClient,
				Method:     http.MethodDelete,
				Endpoint:   "/api/v4/posts/abc",
				ID:         "api.context.permissions.app_error",
				Message:    "You do not have the appropriate permissions.",
			},
			expected: "mattermost client error (status 403) DELETE /api/v4/posts/abc: " +
				"You do not have the appropriate permissions. (api.context.permissions.app_error)",
		},
		{
			name: "no body falls back to status text",
			apiError: &APIError{
				StatusCode: 502,
				ErrorClass: ErrorClassServer,
				Method:     http.MethodGet,
				Endpoint:   "/api/v4/teams",
			},
			expected: "mattermost server error (status 502) GET /api/v4/teams: Bad Gateway",
		},
		{
			name: "with wrapped error",
			apiError: &APIError{
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Method:     http.MethodGet,
				Endpoint:   "/api/v4/users",
				Message:    "internal error",
				Err:        errors.New("unexpected EOF"),
			},
			expected: "mattermost server error (status 500) GET /api/v4/users: internal error: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.apiError.Error(); result != tt.expected {
				t.Errorf("Error() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	wrappedErr := errors.New("wrapped error")
	apiError := &APIError{StatusCode: 500, ErrorClass: ErrorClassServer, Err: wrappedErr}

	if unwrapped := apiError.Unwrap(); unwrapped != wrappedErr {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, wrappedErr)
	}
	if !errors.Is(apiError, wrappedErr) {
		t.Error("errors.Is should work with wrapped error")
	}
	if (&APIError{StatusCode: 404}).Unwrap() != nil {
		t.Error("Unwrap() without wrapped error should be nil")
	}
}

func TestNewAPIError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v4/channels/abc/posts", nil)
	resp := &http.Response{
		StatusCode: http.StatusNotFound,
		Header:     http.Header{"X-Request-Id": {"header-req"}},
		Body: io.NopCloser(strings.NewReader(
			`{"id":"app.channel.get.existing.app_error","message":"Unable to find the existing channel.",` +
				`"detailed_error":"resource: Channel id: abc","request_id":"body-req","status_code":404}`)),
		Request: req,
	}

	apiErr := newAPIError(resp)

	if apiErr.StatusCode != http.StatusNotFound || apiErr.ErrorClass != ErrorClassClient {
		t.Errorf("status/class = %d/%s, want 404/client", apiErr.StatusCode, apiErr.ErrorClass)
	}
	if apiErr.ID != "app.channel.get.existing.app_error" {
		t.Errorf("ID = %q", apiErr.ID)
	}
	if apiErr.DetailedError != "resource: Channel id: abc" {
		t.Errorf("DetailedError = %q", apiErr.DetailedError)
	}
	if apiErr.RequestID != "body-req" {
		t.Errorf("RequestID = %q, want the body value", apiErr.RequestID)
	}
	if apiErr.Method != http.MethodGet || apiErr.Endpoint != "/api/v4/channels/abc/posts" {
		t.Errorf("request = %s %s", apiErr.Method, apiErr.Endpoint)
	}
	if !IsNotFound(apiErr) {
		t.Error("IsNotFound() = false for a 404")
	}
	if !IsNotFound(fmt.Errorf("lookup: %w", apiErr)) {
		t.Error("IsNotFound() should see through wrapping")
	}
}

func TestNewAPIError_NonJSONBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusBadGateway,
		Header:     http.Header{"X-Request-Id": {"header-req"}},
		Body:       io.NopCloser(strings.NewReader("<html>bad gateway</html>")),
	}

	apiErr := newAPIError(resp)

	if apiErr.Message != "" || apiErr.ID != "" {
		t.Errorf("message/id = %q/%q, want empty for a non-JSON body", apiErr.Message, apiErr.ID)
	}
	if apiErr.RequestID != "header-req" {
		t.Errorf("RequestID = %q, want the header value", apiErr.RequestID)
	}
	if apiErr.ErrorClass != ErrorClassServer {
		t.Errorf("ErrorClass = %s, want server", apiErr.ErrorClass)
	}
}

func TestNewAPIError_RetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header http.Header
		want   time.Duration
	}{
		{name: "retry after seconds", status: http.StatusServiceUnavailable, header: http.Header{"Retry-After": {"3"}}, want: 3 * time.Second},
		{name: "rate limit reset on 429", status: http.StatusTooManyRequests, header: http.Header{"X-Ratelimit-Reset": {"2"}}, want: 2 * time.Second},
		{name: "retry after preferred", status: http.StatusTooManyRequests, header: http.Header{"Retry-After": {"1"}, "X-Ratelimit-Reset": {"5"}}, want: time.Second},
		{name: "reset ignored off 429", status: http.StatusInternalServerError, header: http.Header{"X-Ratelimit-Reset": {"5"}}, want: 0},
		{name: "http date ignored", status: http.StatusServiceUnavailable, header: http.Header{"Retry-After": {"Wed, 21 Oct 2026 07:28:00 GMT"}}, want: 0},
		{name: "no header", status: http.StatusTooManyRequests, header: http.Header{}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tt.status,
				Header:     tt.header,
				Body:       io.NopCloser(strings.NewReader("")),
			}
			if got := newAPIError(resp).RetryAfter; got != tt.want {
				t.Errorf("RetryAfter = %v, want %v", got, tt.want)
			}
		})
	}
}
