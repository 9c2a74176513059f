package cache

import (
	"strings"
	"time"
)

const defaultVerifiedKeyTTL = 5 * time.Minute

// VerifiedKeyCache remembers fingerprints whose hash comparison already
// succeeded, so repeat unlocks skip the Argon2 cost. Entries are bound to the
// stored hash; a cached entry never substitutes for the store's status checks.
type VerifiedKeyCache interface {
	Verified(fingerprint, keyHash string) bool
	Remember(fingerprint, keyHash string)
	Forget(fingerprint string)
}

type verifiedKeyCache struct {
	hashes Cache[string, string]
	ttl    time.Duration
}

// NewVerifiedKeyCache returns an in-memory cache tuned for key verification.
func NewVerifiedKeyCache() VerifiedKeyCache {
	return &verifiedKeyCache{
		hashes: NewTTLCache[string, string](),
		ttl:    defaultVerifiedKeyTTL,
	}
}

func (c *verifiedKeyCache) Verified(fingerprint, keyHash string) bool {
	cached, ok := c.hashes.Get(cacheKey(fingerprint))
	return ok && keyHash != "" && cached == keyHash
}

func (c *verifiedKeyCache) Remember(fingerprint, keyHash string) {
	if keyHash == "" {
		return
	}
	c.hashes.Set(cacheKey(fingerprint), keyHash, c.ttl)
}

func (c *verifiedKeyCache) Forget(fingerprint string) {
	c.hashes.Delete(cacheKey(fingerprint))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
