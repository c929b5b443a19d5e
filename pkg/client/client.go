// Package client provides the authenticated Mattermost HTTP session with
// rate limiting, conditional caching, retries and error handling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/mattermost-client/pkg/cache"
	"github.com/Sternrassler/mattermost-client/pkg/logging"
	"github.com/Sternrassler/mattermost-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for Mattermost client operations.
var (
	mmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_requests_total",
		Help: "Total Mattermost API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	mmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mm_request_duration_seconds",
		Help:    "Mattermost API request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	mmErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_errors_total",
		Help: "Total Mattermost API errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Client is an authenticated session against one Mattermost server.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	principal   string
	config      Config
	logger      zerolog.Logger
}

// Config holds the session configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://chat.example.com/api/v4".
	BaseURL string

	// Token is sent as "Authorization: Bearer <token>".
	Token string

	// UserAgent header sent with every request.
	UserAgent string

	// Redis enables the conditional response cache and shares rate limit
	// state between processes. Optional.
	Redis *redis.Client

	// HTTPClient overrides the underlying transport. Optional.
	HTTPClient *http.Client

	// Timeout per HTTP request when HTTPClient is not set.
	Timeout time.Duration

	// Retry
	MaxRetries int // Retries after the first attempt; 0 disables retrying

	// InitialBackoff replaces the first retry delay of every error class.
	// Zero keeps the per-class schedule (500ms for 5xx, 1s for 429 and
	// network errors).
	InitialBackoff time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:        baseURL,
		Token:          token,
		UserAgent:      "mattermost-client/" + Version,
		Timeout:        30 * time.Second,
		MaxRetries: 2,
	}
}

// Version is the version of this library.
const Version = "0.1.0"

// New creates a new Mattermost session.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("access token is required")
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("base url scheme must be http or https (got %q)", baseURL.Scheme)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = "mattermost-client/" + Version
	}

	logger := logging.NewLogger(logging.ComponentClient).With().Str("host", baseURL.Host).Logger()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		httpClient:  httpClient,
		baseURL:     baseURL,
		rateLimiter: ratelimit.NewTracker(cfg.Redis, baseURL.Host, logger),
		principal:   cache.Principal(cfg.Token),
		config:      cfg,
		logger:      logger,
	}

	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
	}

	return c, nil
}

// BaseURL returns the API root the session talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Do performs an HTTP request with rate limiting, caching, and error handling.
//
// Non-2xx responses that are not retried are returned as-is; callers that
// want an error for them use the JSON helpers. Every attempt, retries
// included, first waits on the rate limit tracker, so a window exhausted
// by a 429 is sat out even when it outlasts the retry backoff. Once ctx is
// done the last transport error is returned unmodified.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		mmRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Wait for the rate limiter
	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Request blocked by rate limiter")
		mmRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
	}

	// Step 2: Check Cache
	var cacheKey cache.CacheKey
	var cachedEntry *cache.CacheEntry
	if c.cache != nil && req.Method == http.MethodGet {
		cacheKey = cache.CacheKey{
			Endpoint:    req.URL.Path,
			QueryParams: req.URL.Query(),
			Principal:   c.principal,
		}

		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}

		if entry != nil && cache.ShouldMakeConditionalRequest(entry) {
			cachedEntry = entry
			cache.AddConditionalHeaders(req, entry)
			cache.ConditionalRequestsSent.Inc()
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("etag", entry.ETag).
				Msg("Making conditional request")
		}
	}

	// Step 3: Set headers
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", req.URL.Path).
		Str("method", req.Method).
		Msg("Executing Mattermost request")

	// Step 4: Execute with retry
	var resp *http.Response
	attempt := 0
	retryErr := retryWithBackoff(ctx, c.config.MaxRetries+1, c.config.InitialBackoff, func() error {
		attempt++
		if attempt > 1 {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				mmRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
				return fmt.Errorf("%w: %w", ErrRateLimited, err)
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return fmt.Errorf("rewind request body: %w", err)
				}
				req.Body = body
			}
		}

		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			c.logger.Error().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			mmErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			mmRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return reqErr
		}

		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}

		mmRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusNotModified {
			return nil
		}

		if resp.StatusCode >= 400 {
			errClass := c.classifyError(resp, nil)
			mmErrorsTotal.WithLabelValues(string(errClass)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("Mattermost request error")

			if shouldRetry(errClass) {
				apiErr := newAPIError(resp)
				resp.Body.Close()
				resp = nil
				return apiErr
			}

			// Client errors go back to the caller untouched
			return nil
		}

		return nil
	}, func(err error) ErrorClass {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr.ErrorClass
		}
		return c.classifyError(nil, err)
	})

	if retryErr != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, retryErr
	}

	// A rejected token must not keep serving what it cached.
	if resp.StatusCode == http.StatusUnauthorized && c.cache != nil {
		if n, err := c.cache.PurgePrincipal(ctx, c.principal); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to purge cache for rejected token")
		} else if n > 0 {
			c.logger.Info().Int("entries", n).Msg("Purged cache for rejected token")
		}
	}

	// Step 5: Handle 304 Not Modified
	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()

		if err := c.cache.Refresh(ctx, cacheKey, cache.ExpiresFrom(resp.Header)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}

		resp.Body.Close()
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	// Step 6: Update Cache on success
	if c.cache != nil && req.Method == http.MethodGet && resp.StatusCode == http.StatusOK &&
		(resp.Header.Get("ETag") != "" || resp.Header.Get("Last-Modified") != "") {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, cacheKey, entry); errors.Is(err, cache.ErrEntryTooLarge) {
			c.logger.Debug().Str("endpoint", endpoint).Int("bytes", len(entry.Data)).Msg("Response too large to cache")
		} else if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Dur("ttl", entry.TTL()).
				Msg("Cached response")
		}
	}

	return resp, nil
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		c.logger.Debug().Str("class", string(ErrorClassNetwork)).Msg("Error classified")
		return ErrorClassNetwork
	}

	class := classifyStatus(resp.StatusCode)
	if class != "" {
		c.logger.Debug().Str("class", string(class)).Msg("Error classified")
	}
	return class
}

func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// NewRequest builds a request for endpoint (relative to the base URL).
// A non-nil body is encoded as JSON.
func (c *Client) NewRequest(ctx context.Context, method, endpoint string, query url.Values, body any) (*http.Request, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// Get performs a GET request to a Mattermost endpoint.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return nil, err
	}

	return c.Do(req)
}

// GetJSON performs a GET request and decodes the JSON response into v.
// Non-2xx responses are returned as *APIError.
func (c *Client) GetJSON(ctx context.Context, endpoint string, query url.Values, v any) error {
	return c.doJSON(ctx, http.MethodGet, endpoint, query, nil, v)
}

// PostJSON sends body as JSON and decodes the JSON response into v.
func (c *Client) PostJSON(ctx context.Context, endpoint string, body, v any) error {
	return c.doJSON(ctx, http.MethodPost, endpoint, nil, body, v)
}

// DeleteJSON performs a DELETE request and decodes the JSON response into v.
func (c *Client) DeleteJSON(ctx context.Context, endpoint string, v any) error {
	return c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil, v)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, query url.Values, body, v any) error {
	req, err := c.NewRequest(ctx, method, endpoint, query, body)
	if err != nil {
		return err
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp)
	}

	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

// Close closes the client and releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, nil when caching is disabled.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

// RateLimiter returns the rate limit tracker used by the session.
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}
