package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int]().(*ttlCache[string, int])
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("rate", 150, time.Minute)
	v, ok := c.Get("rate")
	require.True(t, ok)
	require.Equal(t, 150, v)

	now = now.Add(time.Minute)
	_, ok = c.Get("rate")
	require.False(t, ok)
}

func TestTTLCacheNoExpiry(t *testing.T) {
	c := NewTTLCache[string, string]()
	c.Set("k", "v", 0)
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", v)

	c.Delete("k")
	_, ok = c.Get("k")
	require.False(t, ok)
}
