package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/climbing-points/internal/domain"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionStoreRoundTrip(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewSessionStore(client, "session:", time.Hour, testLogger())
	ctx := context.Background()

	who := domain.Identity{ID: "u1", DisplayName: "Ann", Email: "ann@example.com", Provider: domain.ProviderGitHub}
	token, err := store.Create(ctx, who)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}
	if !mr.Exists("session:" + token) {
		t.Fatal("session hash not written")
	}
	if ttl := mr.TTL("session:" + token); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}

	got, err := store.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *got != who {
		t.Errorf("identity = %+v, want %+v", *got, who)
	}

	if err := store.Delete(ctx, token); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, token); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("Get after delete err = %v", err)
	}
	if err := store.Delete(ctx, token); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewSessionStore(client, "session:", time.Minute, testLogger())
	ctx := context.Background()

	token, err := store.Create(ctx, domain.Identity{ID: "u1", Provider: domain.ProviderGoogle})
	if err != nil {
		t.Fatal(err)
	}

	mr.FastForward(30 * time.Second)
	if _, err := store.Get(ctx, token); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}
	// the read above slid the expiry forward
	mr.FastForward(45 * time.Second)
	if _, err := store.Get(ctx, token); err != nil {
		t.Fatalf("Get after sliding: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, token); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("expired session err = %v", err)
	}
}

func TestSessionStoreUnknownToken(t *testing.T) {
	_, client := newTestClient(t)
	store := NewSessionStore(client, "session:", time.Hour, testLogger())

	for _, token := range []string{"", "nope"} {
		if _, err := store.Get(context.Background(), token); !errors.Is(err, domain.ErrUnauthenticated) {
			t.Errorf("Get(%q) err = %v", token, err)
		}
	}
}

func TestSessionStoreRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	store := NewSessionStore(client, "session:", time.Hour, testLogger())

	_, err := store.Get(context.Background(), "tok")
	if err == nil || errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("err = %v, want a connection error", err)
	}
}
