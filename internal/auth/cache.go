package auth

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// ristrettoCache wraps a ristretto.Cache to satisfy Cache with a short,
// fixed TTL: promoted in from the stack harperreed-health uses for its own
// hot-path lookups, since a verified API key is exactly the kind of
// small, read-heavy, short-lived entry ristretto is built for.
type ristrettoCache struct {
	cache *ristretto.Cache[string, StoredKey]
	ttl   time.Duration
}

// NewRistrettoCache builds a Cache backed by ristretto with the given TTL.
// A TTL of zero disables expiry (not recommended: a revoked key would stay
// valid in cache indefinitely).
func NewRistrettoCache(ttl time.Duration) (Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, StoredKey]{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ristrettoCache{cache: c, ttl: ttl}, nil
}

func (r *ristrettoCache) Get(keyID string) (StoredKey, bool) {
	return r.cache.Get(keyID)
}

func (r *ristrettoCache) Set(keyID string, key StoredKey) {
	if r.ttl > 0 {
		r.cache.SetWithTTL(keyID, key, 1, r.ttl)
		return
	}
	r.cache.Set(keyID, key, 1)
}
