package cache

import (
	"net/http"
	"time"
)

// CacheEntry is a stored Mattermost response together with its validators.
type CacheEntry struct {
	// Data is the response body.
	Data []byte `json:"data"`

	// ETag is sent back as If-None-Match.
	ETag string `json:"etag,omitempty"`

	// LastModified is sent back as If-Modified-Since when there is no ETag.
	LastModified time.Time `json:"last_modified,omitzero"`

	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers,omitempty"`

	// CachedAt is when the server last sent the body.
	CachedAt time.Time `json:"cached_at"`

	// Expires bounds how long the entry is kept.
	Expires time.Time `json:"expires"`
}

// HasValidator reports whether the entry can be revalidated with the server.
func (e *CacheEntry) HasValidator() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}

// IsExpired reports whether Expires has passed.
func (e *CacheEntry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// TTL is the time left until Expires, never negative.
func (e *CacheEntry) TTL() time.Duration {
	return max(time.Until(e.Expires), 0)
}

// Age is the time since the body was stored.
func (e *CacheEntry) Age() time.Duration {
	return time.Since(e.CachedAt)
}
