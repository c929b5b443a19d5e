// Package ratelimit tracks the Mattermost server's request rate limit and
// gates outgoing requests before the server starts answering 429.
//
// Mattermost reports its limiter state in the X-Ratelimit-Limit,
// X-Ratelimit-Remaining and X-Ratelimit-Reset (seconds) response headers.
package ratelimit

import (
	"time"
)

// Header names sent by the Mattermost rate limiter.
const (
	HeaderLimit     = "X-Ratelimit-Limit"
	HeaderRemaining = "X-Ratelimit-Remaining"
	HeaderReset     = "X-Ratelimit-Reset"
)

// Thresholds for rate limit decisions, as fractions of the limit.
const (
	// ThrottleFraction applies a short delay when fewer than this share of
	// the limit remains.
	ThrottleFraction = 0.2

	// HealthyFraction marks the state healthy at or above this share.
	HealthyFraction = 0.5
)

// RateLimitState is the last rate limit state reported by the server.
type RateLimitState struct {
	// Limit is the number of requests allowed per window (X-Ratelimit-Limit).
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window (X-Ratelimit-Remaining).
	Remaining int `json:"remaining"`

	// ResetAt is when the window refills (now + X-Ratelimit-Reset seconds).
	ResetAt time.Time `json:"reset_at"`

	LastUpdate time.Time `json:"last_update"`

	IsHealthy bool `json:"is_healthy"`
}

// defaultState is assumed until the server has reported anything.
func defaultState() *RateLimitState {
	return &RateLimitState{
		ResetAt:    time.Now(),
		LastUpdate: time.Now(),
		IsHealthy:  true,
	}
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsWait returns true when the window is exhausted and has not reset yet.
func (s *RateLimitState) NeedsWait() bool {
	return s.Limit > 0 && s.Remaining <= 0 && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true when the window is nearly exhausted.
func (s *RateLimitState) NeedsThrottling() bool {
	if s.Limit <= 0 || s.NeedsWait() || s.TimeUntilReset() == 0 {
		return false
	}
	return float64(s.Remaining) < float64(s.Limit)*ThrottleFraction
}

// TimeUntilReset returns the duration until the window resets, 0 if it
// already has.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field from Limit and Remaining.
func (s *RateLimitState) UpdateHealth() {
	if s.Limit <= 0 {
		s.IsHealthy = true
		return
	}
	s.IsHealthy = float64(s.Remaining) >= float64(s.Limit)*HealthyFraction
}
