package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// MaxEntrySize bounds the body of a cached response. Larger bodies, such as
// full post pages with long messages, pass through uncached.
const MaxEntrySize = 1 << 20

// purgeBatch is how many keys are unlinked per round trip.
const purgeBatch = 100

var (
	// ErrCacheMiss is returned when no live entry exists for a key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry is returned when a stored document cannot be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrEntryTooLarge is returned by Set for bodies above the size limit.
	ErrEntryTooLarge = errors.New("response too large to cache")
)

// Manager stores Mattermost responses in Redis, one JSON document per key.
// Redis expiry follows the entry's Expires time.
type Manager struct {
	rdb          *redis.Client
	maxEntrySize int
}

// NewManager creates a cache on rdb. It panics on a nil client.
func NewManager(rdb *redis.Client) *Manager {
	if rdb == nil {
		panic("cache: nil redis client")
	}
	return &Manager{rdb: rdb, maxEntrySize: MaxEntrySize}
}

// Get returns the entry for key, or ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	raw, err := m.rdb.Get(ctx, key.String()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	case err != nil:
		CacheErrors.WithLabelValues(opGet).Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	entry := new(CacheEntry)
	if err := json.Unmarshal(raw, entry); err != nil {
		CacheErrors.WithLabelValues(opGet).Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis rounds expiry to whole milliseconds, so check the entry too.
	if entry.IsExpired() {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(layerRedis).Inc()
	return entry, nil
}

// Set stores entry until its Expires time. Expired entries are dropped
// without error; bodies above MaxEntrySize return ErrEntryTooLarge.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return errors.New("cache: nil entry")
	}
	if len(entry.Data) > m.maxEntrySize {
		return ErrEntryTooLarge
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues(opSet).Inc()
		return fmt.Errorf("encode cache entry: %w", err)
	}

	if err := m.rdb.Set(ctx, key.String(), raw, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues(opSet).Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheWrittenBytes.WithLabelValues(layerRedis).Add(float64(len(raw)))
	return nil
}

// Refresh keeps an entry the server just confirmed with 304 Not Modified
// until expires.
func (m *Manager) Refresh(ctx context.Context, key CacheKey, expires time.Time) error {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	entry.Expires = expires
	return m.Set(ctx, key, entry)
}

// Delete removes the entry for key.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.rdb.Unlink(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues(opDelete).Inc()
		return fmt.Errorf("redis unlink: %w", err)
	}
	return nil
}

// PurgePrincipal removes every entry cached for principal and returns the
// number of keys removed. Used when the server rejects a token.
func (m *Manager) PurgePrincipal(ctx context.Context, principal string) (int, error) {
	if principal == "" {
		return 0, nil
	}

	removed := 0
	batch := make([]string, 0, purgeBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := m.rdb.Unlink(ctx, batch...).Result()
		if err != nil {
			CacheErrors.WithLabelValues(opPurge).Inc()
			return fmt.Errorf("redis unlink: %w", err)
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	it := m.rdb.Scan(ctx, 0, KeyPrefix+":*:tok="+principal, purgeBatch).Iterator()
	for it.Next(ctx) {
		batch = append(batch, it.Val())
		if len(batch) == purgeBatch {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := it.Err(); err != nil {
		CacheErrors.WithLabelValues(opPurge).Inc()
		return removed, fmt.Errorf("redis scan: %w", err)
	}

	err := flush()
	CachePurgedEntries.Add(float64(removed))
	return removed, err
}
