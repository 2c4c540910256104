package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestGetSet(t *testing.T) {
	c := New[string](4, time.Hour)
	defer c.Close()

	if _, _, ok := c.Get("missing", 0); ok {
		t.Error("hit on empty cache")
	}

	c.Set("terminals", "run-1")
	v, at, ok := c.Get("terminals", time.Minute)
	if !ok || v != "run-1" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	if time.Since(at) > time.Minute {
		t.Errorf("createdAt = %v", at)
	}

	c.SetAt("report", "old", time.Now().Add(-2*time.Hour))
	if _, _, ok := c.Get("report", time.Hour); ok {
		t.Error("entry older than maxAge returned")
	}
	if v, _, ok := c.Get("report", 0); !ok || v != "old" {
		t.Error("maxAge 0 should skip the age check")
	}
}

func TestSet_EvictsAtCapacity(t *testing.T) {
	c := New[int](2, time.Hour)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3) // overwrite, no eviction
	if c.Len() != 2 {
		t.Fatalf("Len = %d after overwrite", c.Len())
	}
	c.Set("c", 4)
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if v, _, ok := c.Get("c", 0); !ok || v != 4 {
		t.Error("newest entry evicted")
	}
}

func TestEvictExpired(t *testing.T) {
	c := New[int](8, time.Hour)
	defer c.Close()

	now := time.Now()
	c.SetAt("stale", 1, now.Add(-90*time.Minute))
	c.SetAt("fresh", 2, now.Add(-10*time.Minute))
	c.evictExpired(now)

	if _, _, ok := c.Get("stale", 0); ok {
		t.Error("stale entry survived")
	}
	if _, _, ok := c.Get("fresh", 0); !ok {
		t.Error("fresh entry evicted")
	}
}

func TestClose_StopsCleanup(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New[int](1, 12*time.Millisecond)
	c.Set("x", 1)
	time.Sleep(30 * time.Millisecond)
	c.Close()
	c.Close()
}

func TestMirror(t *testing.T) {
	url := os.Getenv("STATUSWATCH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("STATUSWATCH_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	m, err := NewMirror(ctx, url, time.Minute)
	if err != nil {
		t.Fatalf("NewMirror: %v", err)
	}
	defer m.Close()

	type payload struct{ Online, Offline int }
	at := time.Now().Truncate(time.Second)
	if err := m.Put(ctx, "test:latest", payload{Online: 5, Offline: 1}, at); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var got payload
	createdAt, ok, err := m.Fetch(ctx, "test:latest", &got)
	if err != nil || !ok {
		t.Fatalf("Fetch = %v, %v", ok, err)
	}
	if got.Online != 5 || got.Offline != 1 || !createdAt.Equal(at) {
		t.Errorf("got %+v at %v", got, createdAt)
	}

	if _, ok, err := m.Fetch(ctx, "test:absent", &got); ok || err != nil {
		t.Errorf("absent key: ok=%v err=%v", ok, err)
	}
}

func TestNewMirror_BadURL(t *testing.T) {
	if _, err := NewMirror(context.Background(), "not a url", time.Minute); err == nil {
		t.Error("expected parse error")
	}
}
