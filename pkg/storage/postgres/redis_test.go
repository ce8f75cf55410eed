package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client, err := NewRedisClient(RedisConfig{
		URL:      "redis://" + mr.Addr(),
		CacheTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("Failed to create redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(RedisConfig{URL: "not-a-url"})
	if err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestRedisClient_GetSetJSON(t *testing.T) {
	client, _ := newTestRedisClient(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	t.Run("miss", func(t *testing.T) {
		var dst payload
		hit, err := client.GetJSON(ctx, "missing", &dst)
		if err != nil {
			t.Fatalf("GetJSON failed: %v", err)
		}
		if hit {
			t.Error("Expected cache miss")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		if err := client.SetJSON(ctx, "key1", payload{Name: "acme", Count: 3}); err != nil {
			t.Fatalf("SetJSON failed: %v", err)
		}

		var dst payload
		hit, err := client.GetJSON(ctx, "key1", &dst)
		if err != nil {
			t.Fatalf("GetJSON failed: %v", err)
		}
		if !hit {
			t.Fatal("Expected cache hit")
		}
		if dst.Name != "acme" || dst.Count != 3 {
			t.Errorf("Got %+v", dst)
		}
	})

	t.Run("corrupt entry treated as miss", func(t *testing.T) {
		client, mr := newTestRedisClient(t)
		mr.Set("bad", "{not json")

		var dst payload
		hit, err := client.GetJSON(ctx, "bad", &dst)
		if err == nil {
			t.Error("Expected unmarshal error for corrupt entry")
		}
		if hit {
			t.Error("Corrupt entry should not report a hit")
		}
		// And the entry is dropped so it cannot poison later reads
		if mr.Exists("bad") {
			t.Error("Corrupt entry should be deleted")
		}
	})
}

func TestRedisClient_TTLApplied(t *testing.T) {
	client, mr := newTestRedisClient(t)
	ctx := context.Background()

	if err := client.SetJSON(ctx, "expiring", map[string]int{"n": 1}); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	if mr.TTL("expiring") != time.Minute {
		t.Errorf("TTL = %v, want 1m", mr.TTL("expiring"))
	}

	mr.FastForward(2 * time.Minute)

	var dst map[string]int
	hit, _ := client.GetJSON(ctx, "expiring", &dst)
	if hit {
		t.Error("Entry should expire after TTL")
	}
}

func TestRedisClient_Invalidate(t *testing.T) {
	client, mr := newTestRedisClient(t)
	ctx := context.Background()

	client.SetJSON(ctx, "a", 1)
	client.SetJSON(ctx, "b", 2)

	if err := client.Invalidate(ctx, "a", "b"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if mr.Exists("a") || mr.Exists("b") {
		t.Error("Keys should be removed")
	}
}

func TestRedisClient_InvalidatePatterns(t *testing.T) {
	client, mr := newTestRedisClient(t)
	ctx := context.Background()

	client.SetJSON(ctx, "materials:org_a:50:0", 1)
	client.SetJSON(ctx, "materials:org_a:50:50", 2)
	client.SetJSON(ctx, "materials:org_b:50:0", 3)

	if err := client.InvalidatePatterns(ctx, "materials:org_a:*"); err != nil {
		t.Fatalf("InvalidatePatterns failed: %v", err)
	}

	if mr.Exists("materials:org_a:50:0") || mr.Exists("materials:org_a:50:50") {
		t.Error("Matching keys should be removed")
	}
	if !mr.Exists("materials:org_b:50:0") {
		t.Error("Non-matching keys should survive")
	}
}
