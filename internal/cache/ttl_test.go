package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTTLCache[string, int](func() time.Time { return now })

	c.Set("a", 1, time.Minute)
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, got)

	now = now.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.Set("b", 2, 0)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestVerifiedKeyCacheBindsHash(t *testing.T) {
	c := NewVerifiedKeyCache()
	fp := "ABCDEF"

	assert.False(t, c.Verified(fp, "hash-1"))
	c.Remember(fp, "hash-1")
	assert.True(t, c.Verified("abcdef", "hash-1"))
	assert.False(t, c.Verified(fp, "hash-2"))
	assert.False(t, c.Verified(fp, ""))

	c.Forget(fp)
	assert.False(t, c.Verified(fp, "hash-1"))
}
