package cache

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestQueryKeyDeterministic(t *testing.T) {
	a := QueryKey("habits.list", "u1", []byte(`{"page":1}`))
	b := QueryKey("habits.list", "u1", []byte(`{"page":1}`))
	if a != b {
		t.Fatalf("expected identical keys, got %q and %q", a, b)
	}
}

func TestQueryKeyVariesWithInputs(t *testing.T) {
	base := QueryKey("habits.list", "u1", []byte(`{"page":1}`))
	if QueryKey("habits.get", "u1", []byte(`{"page":1}`)) == base {
		t.Fatal("expected different key for different query type")
	}
	if QueryKey("habits.list", "u2", []byte(`{"page":1}`)) == base {
		t.Fatal("expected different key for different user")
	}
	if QueryKey("habits.list", "u1", []byte(`{"page":2}`)) == base {
		t.Fatal("expected different key for different payload")
	}
}

func TestUserPatternMatchesUserTag(t *testing.T) {
	key := QueryKey("habits.list", "u1", []byte(`{}`))
	pattern := UserPattern("u1")

	if !strings.HasPrefix(pattern, KeyPrefix) {
		t.Fatalf("expected pattern to carry the namespace prefix, got %q", pattern)
	}
	if !strings.Contains(key, ":u:u1:") {
		t.Fatalf("expected key to carry the user tag, got %q", key)
	}
	// The glob body between the wildcards must appear verbatim in the key.
	body := strings.Trim(strings.TrimPrefix(pattern, KeyPrefix), "*")
	if !strings.Contains(key, body) {
		t.Fatalf("expected key %q to contain pattern body %q", key, body)
	}
}

func TestNilServiceFailsOpen(t *testing.T) {
	var svc *Service
	ctx := context.Background()

	if _, ok := svc.Get(ctx, "k"); ok {
		t.Fatal("expected miss from nil service")
	}
	if svc.Set(ctx, "k", []byte("v"), time.Minute) {
		t.Fatal("expected set to be a no-op on nil service")
	}
	if deleted, err := svc.DeleteByPattern(ctx, "wird:q:*"); err != nil || deleted != 0 {
		t.Fatalf("expected no-op pattern delete, got %d, %v", deleted, err)
	}
	if err := svc.HealthCheck(ctx); err != nil {
		t.Fatalf("expected nil health from nil service, got %v", err)
	}
	if stats := svc.Stats(ctx); stats.ConnectionStatus != StatusDisabled {
		t.Fatalf("expected disabled status, got %q", stats.ConnectionStatus)
	}
}

func TestDisabledServiceStats(t *testing.T) {
	svc := New(nil, nil)
	stats := svc.Stats(context.Background())
	if stats.ConnectionStatus != StatusDisabled {
		t.Fatalf("expected disabled status, got %q", stats.ConnectionStatus)
	}
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Fatalf("expected zero counters, got %+v", stats)
	}
}
