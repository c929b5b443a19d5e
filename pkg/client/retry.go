package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var (
	mmRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_retries_total",
		Help: "Retried Mattermost requests by error class",
	}, []string{"error_class"})

	mmRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mm_retry_backoff_seconds",
		Help:    "Time slept before a retry by error class",
		Buckets: []float64{0.05, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	mmRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_retry_exhausted_total",
		Help: "Requests that failed on every attempt by error class",
	}, []string{"error_class"})
)

// backoffPolicy is the wait schedule for one error class. The delay starts
// at first, doubles after every retry and never exceeds ceiling.
type backoffPolicy struct {
	first   time.Duration
	ceiling time.Duration
}

// policies holds the schedule per retryable class. The server's rate
// limiter refills per second, so 429 and network failures start slower.
var policies = map[ErrorClass]backoffPolicy{
	ErrorClassServer:    {first: 500 * time.Millisecond, ceiling: 5 * time.Second},
	ErrorClassRateLimit: {first: time.Second, ceiling: 10 * time.Second},
	ErrorClassNetwork:   {first: time.Second, ceiling: 10 * time.Second},
}

// policyFor returns the schedule of class. A positive first replaces the
// class's starting delay and lifts the ceiling if needed.
func policyFor(class ErrorClass, first time.Duration) backoffPolicy {
	p, ok := policies[class]
	if !ok {
		p = backoffPolicy{first: 500 * time.Millisecond, ceiling: 10 * time.Second}
	}
	if first > 0 {
		p.first = first
		p.ceiling = max(p.ceiling, first)
	}
	return p
}

// delay returns the wait before retry number n (1-based) with ±20% jitter.
// A server hint such as Retry-After wins over the schedule when it is
// longer, but is still held to the ceiling.
func (p backoffPolicy) delay(n int, hint time.Duration) time.Duration {
	d := p.first
	for i := 1; i < n && d < p.ceiling; i++ {
		d *= 2
	}
	d = min(d, p.ceiling)
	d = time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
	if hint > d {
		d = min(hint, p.ceiling)
	}
	return d
}

// retryHint extracts the server's requested wait from err, if any.
func retryHint(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// retryWithBackoff runs fn up to attempts times. After each failure
// classify decides whether the error is worth another try; client errors
// are returned at once, as is any failure once ctx is done. With a single
// attempt the error is returned as is, otherwise an exhausted run wraps the
// last error in ErrRetryExhausted. A ctx that ends during the wait yields
// ErrContextCancelled wrapping ctx.Err().
func retryWithBackoff(ctx context.Context, attempts int, first time.Duration, fn func() error, classify func(error) ErrorClass) error {
	attempts = max(attempts, 1)

	var class ErrorClass
	for n := 1; ; n++ {
		err := fn()
		if err == nil {
			if n > 1 {
				log.Info().Str("error_class", string(class)).Int("attempt", n).Msg("Request succeeded after retry")
			}
			return nil
		}

		class = classify(err)
		if !shouldRetry(class) {
			return err
		}

		// A failure caused by the caller giving up is not worth retrying.
		if ctx.Err() != nil {
			return err
		}

		if n == attempts {
			if attempts == 1 {
				return err
			}
			mmRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
			log.Warn().Str("error_class", string(class)).Int("attempts", attempts).Msg("Giving up on request")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, err)
		}

		wait := policyFor(class, first).delay(n, retryHint(err))
		mmRetriesTotal.WithLabelValues(string(class)).Inc()
		mmRetryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())
		log.Debug().Str("error_class", string(class)).Int("attempt", n).Dur("wait", wait).Msg("Retrying request")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Warn().Str("error_class", string(class)).Int("attempt", n).Msg("Context done while waiting to retry")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}
}
