package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStore_SetAndGet(t *testing.T) {
	s := New()
	s.Set("k", 42, time.Minute)

	v, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestStore_GetMissingKey(t *testing.T) {
	s := New()
	_, ok := s.Get("nope")
	assert.False(t, ok)
}

func TestStore_ExpiredEntryRemovedOnAccess(t *testing.T) {
	s := New()
	frozen := time.Now()
	s.now = func() time.Time { return frozen }
	s.Set("k", "v", time.Second)

	s.now = func() time.Time { return frozen.Add(2 * time.Second) }
	_, ok := s.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStore_Cleanup_RemovesOnlyExpired(t *testing.T) {
	s := New()
	frozen := time.Now()
	s.now = func() time.Time { return frozen }
	s.Set("stale", "v", time.Second)
	s.Set("fresh", "v", time.Hour)

	s.now = func() time.Time { return frozen.Add(2 * time.Second) }
	removed := s.Cleanup()

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())
}

func TestStore_Delete(t *testing.T) {
	s := New()
	s.Set("k", "v", time.Minute)
	s.Delete("k")

	_, ok := s.Get("k")
	assert.False(t, ok)
}
