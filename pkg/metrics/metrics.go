// Package metrics provides the Prometheus registry reference and HTTP
// exposure for the Mattermost client.
// All metrics are defined in their respective packages (client, cache, ratelimit)
// to maintain modularity and avoid circular dependencies.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Path is where Serve exposes the metrics.
const Path = "/metrics"

// shutdownTimeout bounds the graceful shutdown in Serve.
const shutdownTimeout = 5 * time.Second

// Handler returns the HTTP handler exposing every registered metric.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes the metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(Path, Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - mm_rate_limit_remaining{host} (Gauge): Requests left in the current window
//   - mm_rate_limit_waits_total (Counter): Requests held until the window reset
//   - mm_rate_limit_throttles_total (Counter): Requests delayed near the end of the window
//
// Cache Metrics (pkg/cache):
//   - mm_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - mm_cache_misses_total (Counter): Cache misses
//   - mm_cache_written_bytes_total{layer="redis"} (Counter): Bytes written to the cache
//   - mm_cache_purged_entries_total (Counter): Entries dropped after a 401
//   - mm_304_responses_total (Counter): 304 Not Modified responses
//   - mm_conditional_requests_total (Counter): Conditional requests sent
//   - mm_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - mm_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - mm_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - mm_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - mm_retries_total{error_class} (Counter): Retry attempts by error class
//   - mm_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - mm_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Endpoint labels collapse object ids, e.g. /api/v4/channels/{id}/posts.
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(mm_cache_hits_total[5m])) /
//   (sum(rate(mm_cache_hits_total[5m])) + sum(rate(mm_cache_misses_total[5m])))
//
//   # Rate limit pressure
//   rate(mm_rate_limit_waits_total[5m]) > 0
//
//   # P95 latency of post pagination
//   histogram_quantile(0.95, rate(mm_request_duration_seconds_bucket{endpoint="/api/v4/channels/{id}/posts"}[5m]))
