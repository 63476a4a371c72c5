// Package credcache holds resolved credentials in memory for the
// lifetime of the process, so a user is never prompted twice for the
// same target within one run. Nothing is ever persisted to disk.
package credcache

import (
	"sync"
	"time"
)

// Type discriminates cached credential kinds.
type Type string

const (
	TypeKey      Type = "key"      // value is a private key path
	TypePassword Type = "password" // value is the password itself
)

// DefaultTTL bounds a cache entry's lifetime when the caller does not
// specify one.
const DefaultTTL = 15 * time.Minute

// Credential is an entry owned exclusively by the cache.
type Credential struct {
	Type      Type
	Value     string
	ExpiresAt time.Time
}

// cacheKey is a structured tuple, not a concatenated string, so a
// username containing "@" can never collide with another host.
type cacheKey struct {
	host string
	user string
}

// Cache is a process-lifetime credential store keyed by (host, user).
// Entries expire lazily: Get evicts on read when the entry's deadline
// has passed, so no background sweeping is needed.
type Cache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[cacheKey]Credential
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source, letting tests control expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		now:     time.Now,
		entries: make(map[cacheKey]Credential),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store records a credential for (host, user). A non-positive ttl means
// DefaultTTL. An existing entry for the same key is replaced.
func (c *Cache) Store(host, user string, typ Type, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{host: host, user: user}] = Credential{
		Type:      typ,
		Value:     value,
		ExpiresAt: c.now().Add(ttl),
	}
}

// Get returns the live credential for (host, user), if any. Expired
// entries are evicted on read.
func (c *Cache) Get(host, user string) (Credential, bool) {
	k := cacheKey{host: host, user: user}
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, ok := c.entries[k]
	if !ok {
		return Credential{}, false
	}
	if !c.now().Before(cred.ExpiresAt) {
		delete(c.entries, k)
		return Credential{}, false
	}
	return cred, true
}

// Clear removes the entry for (host, user), if present.
func (c *Cache) Clear(host, user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{host: host, user: user})
}

// ClearAll removes every entry.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]Credential)
}

// Len reports the number of entries, including any not yet lazily evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
