package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	mmRateLimitRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mm_rate_limit_remaining",
		Help: "Requests remaining in the current Mattermost rate limit window",
	}, []string{"host"})

	mmRateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_rate_limit_waits_total",
		Help: "Total number of requests held until the rate limit window reset",
	})

	mmRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_rate_limit_throttles_total",
		Help: "Total number of requests delayed because the window was nearly exhausted",
	})
)

// DefaultThrottleDelay is the pause applied when the window is nearly exhausted.
const DefaultThrottleDelay = 100 * time.Millisecond

// redisKeyTTLSlack keeps shared state around a little past its reset time.
const redisKeyTTLSlack = time.Minute

// Tracker follows the server's rate limit and gates requests.
//
// With a Redis client the state is shared between every process talking to
// the same host; without one it is kept in memory.
type Tracker struct {
	redis     *redis.Client
	namespace string
	logger    zerolog.Logger

	// ThrottleDelay is the pause applied in the throttling zone.
	ThrottleDelay time.Duration

	mu    sync.Mutex
	local *RateLimitState
}

// NewTracker creates a new rate limit tracker for host. redisClient may be nil.
func NewTracker(redisClient *redis.Client, host string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		namespace:     host,
		logger:        logger.With().Str("subsystem", "ratelimit").Logger(),
		ThrottleDelay: DefaultThrottleDelay,
	}
}

// RedisKey returns the hash key holding the shared state.
func (t *Tracker) RedisKey() string {
	return "mm:rate_limit:" + t.namespace
}

// GetState returns the current rate limit state, or a healthy default when
// nothing has been recorded yet.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.local == nil {
			return defaultState(), nil
		}
		state := *t.local
		return &state, nil
	}

	fields, err := t.redis.HGetAll(ctx, t.RedisKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	if len(fields) == 0 {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return defaultState(), nil
	}

	state := &RateLimitState{}
	if state.Limit, err = strconv.Atoi(fields["limit"]); err != nil {
		return nil, fmt.Errorf("parse limit: %w", err)
	}
	if state.Remaining, err = strconv.Atoi(fields["remaining"]); err != nil {
		return nil, fmt.Errorf("parse remaining: %w", err)
	}
	resetUnix, err := strconv.ParseInt(fields["reset_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse reset_at: %w", err)
	}
	state.ResetAt = time.Unix(resetUnix, 0)
	if state.LastUpdate, err = time.Parse(time.RFC3339Nano, fields["last_update"]); err != nil {
		return nil, fmt.Errorf("parse last_update: %w", err)
	}
	state.UpdateHealth()

	return state, nil
}

// UpdateFromHeaders records the rate limit headers of a response. Responses
// without the headers (rate limiting disabled on the server) are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	limit, err := strconv.Atoi(headers.Get(HeaderLimit))
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderLimit, err)
	}

	resetSeconds, err := strconv.Atoi(headers.Get(HeaderReset))
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	now := time.Now()
	state := &RateLimitState{
		Limit:      limit,
		Remaining:  remain,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	state.UpdateHealth()

	if err := t.store(ctx, state, time.Duration(resetSeconds)*time.Second); err != nil {
		return err
	}

	mmRateLimitRemaining.WithLabelValues(t.namespace).Set(float64(remain))

	switch {
	case state.Remaining <= 0:
		t.logger.Warn().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit window exhausted - requests will wait")
	case state.NeedsThrottling():
		t.logger.Debug().
			Int("remaining", remain).
			Int("limit", limit).
			Msg("Rate limit low - requests will be throttled")
	}

	return nil
}

func (t *Tracker) store(ctx context.Context, state *RateLimitState, window time.Duration) error {
	if t.redis == nil {
		t.mu.Lock()
		t.local = state
		t.mu.Unlock()
		return nil
	}

	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, t.RedisKey(),
		"limit", state.Limit,
		"remaining", state.Remaining,
		"reset_at", state.ResetAt.Unix(),
		"last_update", state.LastUpdate.Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, t.RedisKey(), window+redisKeyTTLSlack)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

// Wait blocks until a request may be sent. It returns the context's error if
// ctx ends first.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		// Redis trouble must not stop traffic; the server still enforces the limit
		t.logger.Warn().Err(err).Msg("Rate limit state unavailable, allowing request")
		return nil
	}

	var delay time.Duration
	switch {
	case state.NeedsWait():
		delay = state.TimeUntilReset()
		mmRateLimitWaitsTotal.Inc()
		t.logger.Warn().
			Dur("wait_duration", delay).
			Msg("Rate limit exhausted - waiting for reset")
	case state.NeedsThrottling():
		delay = t.ThrottleDelay
		mmRateLimitThrottlesTotal.Inc()
	default:
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
