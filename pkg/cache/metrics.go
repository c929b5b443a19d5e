package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache operations used as the "operation" label of CacheErrors.
const (
	opGet    = "get"
	opSet    = "set"
	opDelete = "delete"
	opPurge  = "purge"
)

// layerRedis is the only storage layer so far.
const layerRedis = "redis"

var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_cache_hits_total",
		Help: "Cached Mattermost responses found, by storage layer",
	}, []string{"layer"})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_cache_misses_total",
		Help: "Lookups with no usable cached Mattermost response",
	})

	// CacheWrittenBytes counts payload bytes stored, not the current size.
	CacheWrittenBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_cache_written_bytes_total",
		Help: "Bytes of Mattermost responses written to the cache, by storage layer",
	}, []string{"layer"})

	CachePurgedEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_cache_purged_entries_total",
		Help: "Cache entries removed because the server rejected their token",
	})

	NotModifiedResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_304_responses_total",
		Help: "304 Not Modified answers served from the cache",
	})

	ConditionalRequestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_conditional_requests_total",
		Help: "Requests sent with If-None-Match or If-Modified-Since",
	})

	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_cache_errors_total",
		Help: "Failed cache operations, by operation",
	}, []string{"operation"})
)
