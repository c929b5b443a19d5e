// Package cache stores Mattermost API responses in Redis so repeated GETs can
// be revalidated with conditional requests instead of downloading the body again.
//
// Mattermost answers many read endpoints (users, teams, channels, emoji) with an
// ETag. An entry is only useful together with that validator: every cached
// response is revalidated with If-None-Match (or If-Modified-Since), and the
// server decides whether the stored body is still current.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Endpoint:    "/api/v4/users",
//		QueryParams: url.Values{"page": []string{"0"}},
//		Principal:   cache.Principal(token),
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the server
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// a 304 means entry.Data is still current:
//		// manager.Refresh(ctx, key, cache.ExpiresFrom(resp.Header))
//	}
//
// Bodies above MaxEntrySize are not stored. PurgePrincipal drops everything
// cached for a token, e.g. after the server answered 401.
//
// # Metrics
//
//   - mm_cache_hits_total{layer="redis"} - Cache hits
//   - mm_cache_misses_total - Cache misses
//   - mm_cache_written_bytes_total{layer="redis"} - Bytes written to the cache
//   - mm_cache_purged_entries_total - Entries dropped after a 401
//   - mm_304_responses_total - Conditional request successes
//   - mm_conditional_requests_total - Conditional requests sent
//   - mm_cache_errors_total{operation} - Cache operation errors (get, set, delete, purge)
package cache
