package credcache

import (
	"testing"
	"time"
)

// fakeClock is a controllable time source.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache() (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(WithClock(clock.now)), clock
}

func TestStoreAndGetWithinTTL(t *testing.T) {
	c, clock := newTestCache()
	c.Store("h", "u", TypePassword, "p", 60*time.Second)

	clock.advance(59 * time.Second)
	cred, ok := c.Get("h", "u")
	if !ok {
		t.Fatal("expected a live credential within the TTL")
	}
	if cred.Type != TypePassword || cred.Value != "p" {
		t.Errorf("got %+v, want password/p", cred)
	}
}

func TestGetAfterTTLEvicts(t *testing.T) {
	c, clock := newTestCache()
	c.Store("h", "u", TypePassword, "p", 60*time.Second)

	clock.advance(61 * time.Second)
	if _, ok := c.Get("h", "u"); ok {
		t.Fatal("expected absent credential after the TTL elapsed")
	}
	if c.Len() != 0 {
		t.Error("expired entry should have been evicted on read")
	}
}

func TestGetAtExactExpiryIsAbsent(t *testing.T) {
	c, clock := newTestCache()
	c.Store("h", "u", TypeKey, "/home/u/.ssh/id_ed25519", time.Minute)

	clock.advance(time.Minute)
	if _, ok := c.Get("h", "u"); ok {
		t.Error("entry must be absent once the deadline is reached")
	}
}

func TestDefaultTTL(t *testing.T) {
	c, clock := newTestCache()
	c.Store("h", "u", TypePassword, "p", 0)

	clock.advance(DefaultTTL - time.Second)
	if _, ok := c.Get("h", "u"); !ok {
		t.Error("expected credential alive just under the default TTL")
	}
	clock.advance(2 * time.Second)
	if _, ok := c.Get("h", "u"); ok {
		t.Error("expected credential expired past the default TTL")
	}
}

func TestStructuredKeyAvoidsAtSignAmbiguity(t *testing.T) {
	c, _ := newTestCache()

	// A username containing "@" must not collide with a different
	// (user, host) split of the same concatenated string.
	c.Store("c", "a@b", TypePassword, "one", time.Minute)
	c.Store("b@c", "a", TypePassword, "two", time.Minute)

	cred, ok := c.Get("c", "a@b")
	if !ok || cred.Value != "one" {
		t.Errorf("get(c, a@b) = %+v, %v; want value one", cred, ok)
	}
	cred, ok = c.Get("b@c", "a")
	if !ok || cred.Value != "two" {
		t.Errorf("get(b@c, a) = %+v, %v; want value two", cred, ok)
	}
}

func TestStoreReplaces(t *testing.T) {
	c, _ := newTestCache()
	c.Store("h", "u", TypePassword, "old", time.Minute)
	c.Store("h", "u", TypePassword, "new", time.Minute)

	cred, _ := c.Get("h", "u")
	if cred.Value != "new" {
		t.Errorf("value = %q, want new", cred.Value)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}

func TestClearAndClearAll(t *testing.T) {
	c, _ := newTestCache()
	c.Store("h1", "u", TypePassword, "p1", time.Minute)
	c.Store("h2", "u", TypePassword, "p2", time.Minute)

	c.Clear("h1", "u")
	if _, ok := c.Get("h1", "u"); ok {
		t.Error("cleared entry still present")
	}
	if _, ok := c.Get("h2", "u"); !ok {
		t.Error("unrelated entry was removed")
	}

	c.ClearAll()
	if c.Len() != 0 {
		t.Errorf("len after ClearAll = %d, want 0", c.Len())
	}
}
