package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/mattermost-client/pkg/ratelimit"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRateLimited is returned when the rate limiter refuses to let a request through.
	ErrRateLimited = errors.New("request blocked: rate limit exhausted")
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// APIError is a non-2xx response from the Mattermost server.
//
// ID, Message, DetailedError and RequestID are filled from the server's
// AppError body when it has one.
type APIError struct {
	StatusCode    int
	ErrorClass    ErrorClass
	Method        string
	Endpoint      string
	ID            string
	Message       string
	DetailedError string
	RequestID     string

	// RetryAfter is the wait the server asked for before the next attempt,
	// taken from Retry-After or, on a 429, X-Ratelimit-Reset.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.ID != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.ID)
	}
	if e.Err != nil {
		return fmt.Sprintf("mattermost %s error (status %d) %s %s: %s: %v",
			e.ErrorClass, e.StatusCode, e.Method, e.Endpoint, msg, e.Err)
	}
	return fmt.Sprintf("mattermost %s error (status %d) %s %s: %s",
		e.ErrorClass, e.StatusCode, e.Method, e.Endpoint, msg)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// appErrorBody is the JSON shape of a Mattermost AppError.
type appErrorBody struct {
	ID            string `json:"id"`
	Message       string `json:"message"`
	DetailedError string `json:"detailed_error"`
	RequestID     string `json:"request_id"`
	StatusCode    int    `json:"status_code"`
}

// newAPIError builds an APIError from a failed response and consumes its body.
func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: classifyStatus(resp.StatusCode),
		RequestID:  resp.Header.Get("X-Request-Id"),
		RetryAfter: retryAfter(resp),
	}
	if resp.Request != nil {
		apiErr.Method = resp.Request.Method
		apiErr.Endpoint = resp.Request.URL.Path
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		apiErr.Err = fmt.Errorf("read error body: %w", err)
		return apiErr
	}

	var appErr appErrorBody
	if len(body) > 0 && json.Unmarshal(body, &appErr) == nil {
		apiErr.ID = appErr.ID
		apiErr.Message = appErr.Message
		apiErr.DetailedError = appErr.DetailedError
		if appErr.RequestID != "" {
			apiErr.RequestID = appErr.RequestID
		}
	}

	return apiErr
}

// retryAfter reads the server's backoff request in whole seconds. The
// HTTP-date form of Retry-After is not used by Mattermost and is ignored.
func retryAfter(resp *http.Response) time.Duration {
	value := resp.Header.Get("Retry-After")
	if value == "" && resp.StatusCode == http.StatusTooManyRequests {
		value = resp.Header.Get(ratelimit.HeaderReset)
	}
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors will not change on retry
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}
