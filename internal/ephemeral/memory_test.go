package ephemeral

import (
	"context"
	"sort"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore() (*memoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return newMemoryAt(clock.now), clock
}

func TestMemoryIncrExpire(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := store.Incr(ctx, "rate_limit:u1")
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if n != want {
			t.Fatalf("Incr = %d, want %d", n, want)
		}
	}

	if err := store.Expire(ctx, "rate_limit:u1", time.Minute); err != nil {
		t.Fatalf("Expire: %v", err)
	}

	// Within the window the counter keeps growing.
	clock.advance(30 * time.Second)
	if n, _ := store.Incr(ctx, "rate_limit:u1"); n != 4 {
		t.Errorf("Incr = %d, want 4", n)
	}

	// After expiry the window resets.
	clock.advance(2 * time.Minute)
	if n, _ := store.Incr(ctx, "rate_limit:u1"); n != 1 {
		t.Errorf("Incr after expiry = %d, want 1", n)
	}
}

func TestMemorySetGetJSON(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	type flag struct {
		UserID string `json:"userId"`
	}
	if err := store.SetJSON(ctx, "typing:c1:u1", flag{UserID: "u1"}, 10*time.Second); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var got flag
	found, err := store.GetJSON(ctx, "typing:c1:u1", &got)
	if err != nil || !found {
		t.Fatalf("GetJSON = %v, %v", found, err)
	}
	if got.UserID != "u1" {
		t.Errorf("got = %+v", got)
	}

	clock.advance(11 * time.Second)
	if found, _ := store.GetJSON(ctx, "typing:c1:u1", &got); found {
		t.Error("expired key should not be found")
	}
}

func TestMemoryKeysGlob(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	_ = store.SetJSON(ctx, "typing:c1:u1", 1, 10*time.Second)
	_ = store.SetJSON(ctx, "typing:c1:u2", 1, 10*time.Second)
	_ = store.SetJSON(ctx, "typing:c2:u1", 1, 10*time.Second)
	_ = store.SetJSON(ctx, "rate_limit:u1", 1, time.Minute)

	keys, err := store.Keys(ctx, "typing:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	sort.Strings(keys)
	want := []string{"typing:c1:u1", "typing:c1:u2", "typing:c2:u1"}
	if len(keys) != len(want) {
		t.Fatalf("Keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys = %v, want %v", keys, want)
		}
	}

	// Expired keys drop out of listings.
	clock.advance(30 * time.Second)
	keys, _ = store.Keys(ctx, "typing:*")
	if len(keys) != 0 {
		t.Errorf("Keys after expiry = %v, want none", keys)
	}
	keys, _ = store.Keys(ctx, "rate_limit:*")
	if len(keys) != 1 {
		t.Errorf("rate_limit keys = %v, want 1", keys)
	}
}

func TestMemoryDelIdempotent(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	_ = store.SetJSON(ctx, "typing:c1:u1", 1, time.Minute)
	if err := store.Del(ctx, "typing:c1:u1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	// Deleting again is not an error.
	if err := store.Del(ctx, "typing:c1:u1"); err != nil {
		t.Fatalf("second Del: %v", err)
	}
}
