package ttlru

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := New[string, int](0, 0)
	c.Put("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestGetMissingKeyIsMiss(t *testing.T) {
	c := New[string, int](0, 0)
	_, ok := c.Get("missing")
	require.False(t, ok)
}

func TestPutReplacesExistingValue(t *testing.T) {
	c := New[string, int](0, 0)
	c.Put("a", 1)
	c.Put("a", 2)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.Equal(t, 1, c.Len())
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2, 0)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3) // evicts "a", the least recently used

	_, ok := c.Get("a")
	require.False(t, ok)
	_, ok = c.Get("b")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
	require.Equal(t, 2, c.Len())
}

func TestGetPromotesToMostRecentlyUsed(t *testing.T) {
	c := New[string, int](2, 0)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // promote "a", making "b" the least recently used
	c.Put("c", 3)

	_, ok := c.Get("b")
	require.False(t, ok, "b should have been evicted as least recently used")
	_, ok = c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestTTLExpiryEvictsOnGet(t *testing.T) {
	c := New[string, int](0, time.Millisecond)
	c.Put("a", 1)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("a")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := New[string, int](0, 0)
	c.Put("a", 1)
	time.Sleep(5 * time.Millisecond)

	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestDeleteRemovesEntry(t *testing.T) {
	c := New[string, int](0, 0)
	c.Put("a", 1)
	c.Delete("a")
	_, ok := c.Get("a")
	require.False(t, ok)
}

func TestDeleteMissingKeyIsNoop(t *testing.T) {
	c := New[string, int](0, 0)
	require.NotPanics(t, func() { c.Delete("missing") })
}

func TestClearRemovesAllEntries(t *testing.T) {
	c := New[string, int](0, 0)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Clear()
	require.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	require.False(t, ok)
}

func TestPeekMutatesInPlaceWithoutAffectingLRUOrder(t *testing.T) {
	c := New[string, int](2, 0)
	c.Put("a", 1)
	c.Put("b", 2)

	ok := c.Peek("a", func(v *int) { *v = 99 })
	require.True(t, ok)

	var v int
	ok = c.Peek("a", func(p *int) { v = *p })
	require.True(t, ok)
	require.Equal(t, 99, v)

	// Peek must not promote "a" in LRU order: it was put first and never
	// Get before this point, so it is still the least recently used and
	// is the one evicted when "c" pushes the cache over capacity.
	c.Put("c", 3)
	_, aOk := c.Get("a")
	_, bOk := c.Get("b")
	require.False(t, aOk)
	require.True(t, bOk)
}

func TestPeekMissingKeyReturnsFalse(t *testing.T) {
	c := New[string, int](0, 0)
	called := false
	ok := c.Peek("missing", func(v *int) { called = true })
	require.False(t, ok)
	require.False(t, called)
}

func TestPeekExpiredEntryReturnsFalseAndEvicts(t *testing.T) {
	c := New[string, int](0, time.Millisecond)
	c.Put("a", 1)
	time.Sleep(5 * time.Millisecond)

	ok := c.Peek("a", func(v *int) { *v = 2 })
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestLenReflectsCurrentSize(t *testing.T) {
	c := New[string, int](0, 0)
	require.Equal(t, 0, c.Len())
	c.Put("a", 1)
	c.Put("b", 2)
	require.Equal(t, 2, c.Len())
}
