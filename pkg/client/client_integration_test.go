//go:build integration

package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/mattermost-client/internal/testutil"
	"github.com/Sternrassler/mattermost-client/pkg/cache"
)

// revalidatingServer serves a fixed team list with an ETag and answers
// conditional requests with 304. It counts both kinds of request.
type revalidatingServer struct {
	*httptest.Server
	full, conditional atomic.Int32
	status            atomic.Int32
}

func newRevalidatingServer(t *testing.T) *revalidatingServer {
	s := &revalidatingServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Limit", "10")
		w.Header().Set("X-Ratelimit-Remaining", "9")
		w.Header().Set("X-Ratelimit-Reset", "1")

		if code := s.status.Load(); code != 0 {
			w.WriteHeader(int(code))
			w.Write([]byte(`{"id":"api.context.session_expired.app_error","status_code":401}`))
			return
		}
		if r.Header.Get("If-None-Match") == `"teams-v1"` {
			s.conditional.Add(1)
			w.Header().Set("Expires", time.Now().Add(10*time.Minute).Format(http.TimeFormat))
			w.WriteHeader(http.StatusNotModified)
			return
		}

		s.full.Add(1)
		w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
		w.Header().Set("ETag", `"teams-v1"`)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"t1"},{"id":"t2"}]`))
	}))
	t.Cleanup(s.Close)
	return s
}

func TestIntegration_NotModifiedServedFromRedis(t *testing.T) {
	server := newRevalidatingServer(t)
	client := newTestClient(t, server.Server, testutil.RedisContainer(t))
	ctx := context.Background()

	for i := range 2 {
		var teams []map[string]any
		if err := client.GetJSON(ctx, "/teams", nil, &teams); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		if len(teams) != 2 {
			t.Errorf("request %d: teams = %d, want 2", i+1, len(teams))
		}
	}

	if server.full.Load() != 1 || server.conditional.Load() != 1 {
		t.Errorf("full/conditional = %d/%d, want 1/1", server.full.Load(), server.conditional.Load())
	}

	entry, err := client.GetCache().Get(ctx, cache.CacheKey{Endpoint: "/api/v4/teams", Principal: client.principal})
	if err != nil {
		t.Fatalf("cache lookup: %v", err)
	}
	if entry.ETag != `"teams-v1"` {
		t.Errorf("cached ETag = %q", entry.ETag)
	}
	if entry.TTL() < 9*time.Minute {
		t.Errorf("cached TTL = %v, want the 304's later Expires", entry.TTL())
	}
}

func TestIntegration_UnauthorizedDropsCachedEntries(t *testing.T) {
	server := newRevalidatingServer(t)
	client := newTestClient(t, server.Server, testutil.RedisContainer(t))
	ctx := context.Background()

	if err := client.GetJSON(ctx, "/teams", nil, nil); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}

	server.status.Store(http.StatusUnauthorized)
	err := client.GetJSON(ctx, "/teams", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("GetJSON() error = %v, want a 401 APIError", err)
	}

	_, err = client.GetCache().Get(ctx, cache.CacheKey{Endpoint: "/api/v4/teams", Principal: client.principal})
	if !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("cache lookup after 401 = %v, want ErrCacheMiss", err)
	}
}

func TestIntegration_RateLimitWindowShared(t *testing.T) {
	rdb := testutil.RedisContainer(t)

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("X-Ratelimit-Limit", "10")
		w.Header().Set("X-Ratelimit-Remaining", "0")
		w.Header().Set("X-Ratelimit-Reset", "30")
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(server.Close)

	if err := newTestClient(t, server, rdb).GetJSON(context.Background(), "/users", nil, nil); err != nil {
		t.Fatalf("first session: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := newTestClient(t, server, rdb).GetJSON(ctx, "/users", nil, nil); !errors.Is(err, ErrRateLimited) {
		t.Errorf("second session error = %v, want ErrRateLimited", err)
	}
	if requests.Load() != 1 {
		t.Errorf("requests = %d, want 1", requests.Load())
	}
}

func TestIntegration_CacheScopedToToken(t *testing.T) {
	rdb := testutil.RedisContainer(t)
	server := newRevalidatingServer(t)

	other := DefaultConfig(server.URL+"/api/v4", "other-token")
	other.Redis = rdb
	second, err := New(other)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	for _, c := range []*Client{newTestClient(t, server.Server, rdb), second} {
		if err := c.GetJSON(ctx, "/teams", nil, nil); err != nil {
			t.Fatalf("GetJSON() error = %v", err)
		}
	}

	if server.conditional.Load() != 0 {
		t.Errorf("conditional requests = %d, want 0 across tokens", server.conditional.Load())
	}
}
