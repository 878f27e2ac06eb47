package endpointcore

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/identity"
)

// cacheEntry pairs a cached Outcome with the instant it expires.
type cacheEntry struct {
	outcome *identity.Outcome
	expires time.Time
}

// AuthCache wraps an Authenticator with an LRU+TTL cache of successful
// outcomes, per spec.md §5: "Client caches (e.g. device-auth cache in
// MQTT endpoints) use LRU with TTL; entries are refreshed on expiry;
// the cache is coherent-eventually and must tolerate stale reads of up
// to the TTL." Failures are never cached, so a revoked credential is
// rejected on its very next attempt.
type AuthCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration
	inner Authenticator
	now   func() time.Time
}

// NewAuthCache builds an AuthCache of the given size and TTL
// (config.DeviceAuthCache) wrapping inner.
func NewAuthCache(size int, ttl time.Duration, inner Authenticator) *AuthCache {
	if size <= 0 {
		size = 10000
	}
	c, _ := lru.New[string, cacheEntry](size)
	return &AuthCache{cache: c, ttl: ttl, inner: inner, now: time.Now}
}

func cacheKey(app, device string, cred identity.Credential, as string) string {
	return fmt.Sprintf("%s/%s/%s/%s:%s/%s", app, device, cred.Kind, cred.Username, cred.Password, as)
}

// AuthenticateDevice serves a cached Outcome when present and unexpired;
// otherwise it delegates to inner and caches a successful result.
func (c *AuthCache) AuthenticateDevice(ctx context.Context, app, device string, cred identity.Credential, as string) (*identity.Outcome, error) {
	key := cacheKey(app, device, cred, as)

	c.mu.Lock()
	if entry, ok := c.cache.Get(key); ok {
		if c.now().Before(entry.expires) {
			c.mu.Unlock()
			return entry.outcome, nil
		}
		c.cache.Remove(key)
	}
	c.mu.Unlock()

	outcome, err := c.inner.AuthenticateDevice(ctx, app, device, cred, as)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache.Add(key, cacheEntry{outcome: outcome, expires: c.now().Add(c.ttl)})
	c.mu.Unlock()

	return outcome, nil
}
