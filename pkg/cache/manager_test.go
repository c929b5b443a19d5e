package cache

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/Sternrassler/mattermost-client/internal/testutil"
)

func usersPage(expires time.Duration) *CacheEntry {
	return &CacheEntry{
		Data:       []byte(`[{"id":"u1","username":"alice"}]`),
		ETag:       `"5.0.abc123"`,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		CachedAt:   time.Now(),
		Expires:    time.Now().Add(expires),
	}
}

func TestNewManager_NilClient(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewManager(nil) did not panic")
		}
	}()
	NewManager(nil)
}

func TestManager_RoundTrip(t *testing.T) {
	manager := NewManager(testutil.LocalRedis(t))
	ctx := context.Background()

	key := CacheKey{Endpoint: "/api/v4/users", Principal: Principal("token")}
	entry := usersPage(5 * time.Minute)

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got.Data, entry.Data) || got.ETag != entry.ETag || got.StatusCode != entry.StatusCode {
		t.Errorf("Get() = %+v, want %+v", got, entry)
	}
	if got.Headers.Get("Content-Type") != "application/json" {
		t.Errorf("Headers = %v, want Content-Type kept", got.Headers)
	}
}

func TestManager_Misses(t *testing.T) {
	client := testutil.LocalRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	t.Run("absent", func(t *testing.T) {
		_, err := manager.Get(ctx, CacheKey{Endpoint: "/api/v4/teams/missing"})
		if !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Get() error = %v, want ErrCacheMiss", err)
		}
	})

	t.Run("expired entry is not stored", func(t *testing.T) {
		key := CacheKey{Endpoint: "/api/v4/emoji"}
		if err := manager.Set(ctx, key, usersPage(-time.Hour)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if n := client.Exists(ctx, key.String()).Val(); n != 0 {
			t.Errorf("expired entry written to Redis")
		}
		if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Get() error = %v, want ErrCacheMiss", err)
		}
	})

	t.Run("corrupt document", func(t *testing.T) {
		key := CacheKey{Endpoint: "/api/v4/bots"}
		if err := client.Set(ctx, key.String(), "not json", time.Minute).Err(); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
		if _, err := manager.Get(ctx, key); !errors.Is(err, ErrInvalidEntry) {
			t.Errorf("Get() error = %v, want ErrInvalidEntry", err)
		}
	})
}

func TestManager_SetRejects(t *testing.T) {
	client := testutil.LocalRedis(t)
	manager := NewManager(client)
	ctx := context.Background()
	key := CacheKey{Endpoint: "/api/v4/channels/ch1/posts"}

	if err := manager.Set(ctx, key, nil); err == nil {
		t.Error("Set(nil) returned no error")
	}

	big := usersPage(time.Minute)
	big.Data = bytes.Repeat([]byte("x"), MaxEntrySize+1)
	if err := manager.Set(ctx, key, big); !errors.Is(err, ErrEntryTooLarge) {
		t.Errorf("Set(large) error = %v, want ErrEntryTooLarge", err)
	}
	if n := client.Exists(ctx, key.String()).Val(); n != 0 {
		t.Error("oversized entry written to Redis")
	}
}

func TestManager_Refresh(t *testing.T) {
	client := testutil.LocalRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := CacheKey{Endpoint: "/api/v4/emoji"}
	if err := manager.Set(ctx, key, usersPage(time.Minute)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	expires := time.Now().Add(10 * time.Minute)
	if err := manager.Refresh(ctx, key, expires); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d := got.Expires.Sub(expires); d < -time.Second || d > time.Second {
		t.Errorf("Expires = %v, want %v", got.Expires, expires)
	}
	if ttl := client.TTL(ctx, key.String()).Val(); ttl < 9*time.Minute {
		t.Errorf("redis TTL = %v, want about 10m", ttl)
	}

	if err := manager.Refresh(ctx, CacheKey{Endpoint: "/api/v4/absent"}, expires); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Refresh(absent) error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Delete(t *testing.T) {
	manager := NewManager(testutil.LocalRedis(t))
	ctx := context.Background()

	key := CacheKey{Endpoint: "/api/v4/emoji"}
	if err := manager.Set(ctx, key, usersPage(time.Minute)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after Delete error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_PrincipalIsolation(t *testing.T) {
	manager := NewManager(testutil.LocalRedis(t))
	ctx := context.Background()

	owner := CacheKey{Endpoint: "/api/v4/users", Principal: "owner"}
	other := CacheKey{Endpoint: "/api/v4/users", Principal: "other"}

	if err := manager.Set(ctx, owner, usersPage(time.Minute)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := manager.Get(ctx, other); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() for another principal error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_PurgePrincipal(t *testing.T) {
	client := testutil.LocalRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	revoked := Principal("revoked-token")
	kept := CacheKey{Endpoint: "/api/v4/users", Principal: Principal("other-token")}

	// More keys than one unlink batch.
	for page := 0; page < purgeBatch+5; page++ {
		key := CacheKey{
			Endpoint:    "/api/v4/users",
			QueryParams: url.Values{"page": {strconv.Itoa(page)}},
			Principal:   revoked,
		}
		if err := manager.Set(ctx, key, usersPage(time.Minute)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	if err := manager.Set(ctx, kept, usersPage(time.Minute)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	removed, err := manager.PurgePrincipal(ctx, revoked)
	if err != nil {
		t.Fatalf("PurgePrincipal() error = %v", err)
	}
	if removed != purgeBatch+5 {
		t.Errorf("PurgePrincipal() removed %d, want %d", removed, purgeBatch+5)
	}
	if _, err := manager.Get(ctx, kept); err != nil {
		t.Errorf("entry of another principal purged: %v", err)
	}

	if n, err := manager.PurgePrincipal(ctx, ""); n != 0 || err != nil {
		t.Errorf("PurgePrincipal(\"\") = %d, %v, want 0, nil", n, err)
	}
}
