package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"net/url"
	"slices"
	"strings"
)

// KeyPrefix namespaces every key written by this package.
const KeyPrefix = "mm"

// CacheKey identifies a cached Mattermost response.
type CacheKey struct {
	// Endpoint is the request path, e.g. "/api/v4/users".
	Endpoint string

	QueryParams url.Values

	// Principal identifies the token the response was fetched with, since
	// Mattermost filters results by the caller's permissions. Empty for
	// anonymous requests.
	Principal string
}

// String renders the Redis key: the prefix, the trimmed endpoint, each
// query parameter in key order with its values comma joined, then the
// principal.
//
//	mm:api/v4/users:page=0:per_page=60:tok=3f2a9c0d1e4b5a6c
func (k CacheKey) String() string {
	var b strings.Builder
	b.WriteString(KeyPrefix)

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		b.WriteString(":" + endpoint)
	}
	for _, name := range slices.Sorted(maps.Keys(k.QueryParams)) {
		b.WriteString(":" + name + "=" + strings.Join(k.QueryParams[name], ","))
	}
	if k.Principal != "" {
		b.WriteString(":tok=" + k.Principal)
	}
	return b.String()
}

// Principal returns the fingerprint of a token used in cache keys. The
// token itself is never written to Redis.
func Principal(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
