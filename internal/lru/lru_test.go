package lru

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int](2)
	c.Put("a", 1)
	c.Put("b", 2)

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestCache_PutReplaces(t *testing.T) {
	c := New[string](2)
	c.Put("a", "one")
	c.Put("a", "uno")

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "uno", v)
}

func TestCache_DeletePrefix(t *testing.T) {
	c := New[int](10)
	c.Put("37.444900,-122.139400|50", 1)
	c.Put("37.444900,-122.139400|100", 2)
	c.Put("40.000000,-74.000000|50", 3)

	c.DeletePrefix("37.444900,-122.139400")

	_, ok := c.Get("37.444900,-122.139400|50")
	assert.False(t, ok)
	_, ok = c.Get("37.444900,-122.139400|100")
	assert.False(t, ok)
	v, ok := c.Get("40.000000,-74.000000|50")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestCache_EvictionKeepsListConsistent(t *testing.T) {
	c := New[int](3)
	for i, k := range []string{"a", "b", "c", "d", "e"} {
		c.Put(k, i)
	}

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
	for i, k := range []string{"c", "d", "e"} {
		v, ok := c.Get(k)
		require.True(t, ok, k)
		assert.Equal(t, i+2, v)
	}
}
