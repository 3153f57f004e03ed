package token

import (
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// Cache keeps the currently issued token per session so that
// redisplaying a QR code returns the same bearer string instead of
// minting a fresh one. Entries live exactly as long as the token
// itself; hits must not touch the TTL, since the redemption window is
// fixed at issuance.
type Cache struct {
	c *ttlcache.Cache[uuid.UUID, string]
}

// NewCache creates a token cache and starts its eviction loop.
func NewCache() *Cache {
	c := ttlcache.New[uuid.UUID, string](
		ttlcache.WithDisableTouchOnHit[uuid.UUID, string](),
	)
	go c.Start()
	return &Cache{c: c}
}

// GetOrIssue returns the cached token for a session, or calls issue and
// caches the result for ttl. A non-positive ttl bypasses the cache so
// an already-expired window never gets a cache entry.
func (c *Cache) GetOrIssue(sessionID uuid.UUID, ttl time.Duration, issue func() (string, error)) (string, error) {
	if item := c.c.Get(sessionID); item != nil {
		return item.Value(), nil
	}
	tok, err := issue()
	if err != nil {
		return "", err
	}
	if ttl > 0 {
		c.c.Set(sessionID, tok, ttl)
	}
	return tok, nil
}

// Stop terminates the eviction loop.
func (c *Cache) Stop() {
	c.c.Stop()
}
