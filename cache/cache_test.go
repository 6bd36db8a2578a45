package cache

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	s := New()
	body := []byte("hello world")

	s.Insert("/a.html", body)

	obj, ok := s.Lookup("/a.html")
	require.True(t, ok)
	defer obj.Release()
	assert.Equal(t, body, obj.Body())
}

func TestLookupMiss(t *testing.T) {
	s := New()
	_, ok := s.Lookup("/nope")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), s.Stats().Misses)
}

func TestExactKeyMatchOnly(t *testing.T) {
	s := New()
	s.Insert("http://example.com/a", []byte("a"))

	// neither prefixes nor extensions of a stored key may match
	if _, ok := s.Lookup("http://example.com/"); ok {
		t.Fatal("prefix of stored key matched")
	}
	if _, ok := s.Lookup("http://example.com/ab"); ok {
		t.Fatal("extension of stored key matched")
	}
	obj, ok := s.Lookup("http://example.com/a")
	require.True(t, ok)
	obj.Release()
}

func TestDuplicateInsertKeepsFirstBody(t *testing.T) {
	s := New()
	s.Insert("/a", []byte("first"))
	s.Insert("/a", []byte("second"))

	obj, ok := s.Lookup("/a")
	require.True(t, ok)
	defer obj.Release()
	assert.Equal(t, "first", string(obj.Body()))

	st := s.Stats()
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, len("first"), st.TotalSize)
}

func TestOversizeObjectNeverCached(t *testing.T) {
	s := New()
	s.Insert("/big", make([]byte, MaxObjectSize+1))

	_, ok := s.Lookup("/big")
	assert.False(t, ok)
	st := s.Stats()
	assert.Equal(t, 0, st.Entries)
	assert.Equal(t, 0, st.TotalSize)
}

func TestCapacityInvariantHolds(t *testing.T) {
	s := New()
	body := make([]byte, MaxObjectSize)
	for i := 0; i < 25; i++ {
		s.Insert(fmt.Sprintf("/obj-%d", i), body)
		require.LessOrEqual(t, s.Stats().TotalSize, MaxCacheSize)
	}
	// 10 objects of 100 KiB fit under the 1 MiB ceiling, an 11th does not
	assert.Equal(t, 10, s.Stats().Entries)
	assert.Equal(t, uint64(15), s.Stats().Evictions)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	s := NewWithCapacity(30, 10)
	s.Insert("/a", make([]byte, 10))
	s.Insert("/b", make([]byte, 10))
	s.Insert("/c", make([]byte, 10))

	// touch /a so /b becomes the least recently used entry
	obj, ok := s.Lookup("/a")
	require.True(t, ok)
	obj.Release()

	s.Insert("/d", make([]byte, 10))

	if _, ok := s.Lookup("/b"); ok {
		t.Fatal("least recently used entry survived eviction")
	}
	for _, key := range []string{"/a", "/c", "/d"} {
		o, ok := s.Lookup(key)
		require.True(t, ok, "expected %s to be cached", key)
		o.Release()
	}
}

func TestEvictionFreesEnoughForLargeInsert(t *testing.T) {
	s := NewWithCapacity(30, 20)
	s.Insert("/a", make([]byte, 10))
	s.Insert("/b", make([]byte, 10))
	s.Insert("/c", make([]byte, 10))

	// needs two evictions before it fits
	s.Insert("/big", make([]byte, 20))

	st := s.Stats()
	assert.Equal(t, 2, st.Entries)
	assert.Equal(t, 30, st.TotalSize)
	obj, ok := s.Lookup("/big")
	require.True(t, ok)
	obj.Release()
}

func TestEvictedBodyStaysReadable(t *testing.T) {
	s := NewWithCapacity(10, 8)
	s.Insert("/a", []byte("aaaa"))

	obj, ok := s.Lookup("/a")
	require.True(t, ok)

	// force /a out while the claim is held
	s.Insert("/b", make([]byte, 8))
	if _, found := s.Lookup("/a"); found {
		t.Fatal("expected /a to be evicted")
	}

	assert.Equal(t, "aaaa", string(obj.Body()))
	obj.Release()
}

func TestBodyCopiedOnInsert(t *testing.T) {
	s := New()
	body := []byte("immutable")
	s.Insert("/a", body)
	body[0] = 'X'

	obj, ok := s.Lookup("/a")
	require.True(t, ok)
	defer obj.Release()
	assert.Equal(t, "immutable", string(obj.Body()))
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	body := bytes.Repeat([]byte{'x'}, 100)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("/obj-%d", j%20)
				if obj, ok := s.Lookup(key); ok {
					_ = obj.Body()[0]
					obj.Release()
				} else {
					s.Insert(key, body)
				}
			}
		}()
	}
	wg.Wait()

	st := s.Stats()
	assert.LessOrEqual(t, st.TotalSize, MaxCacheSize)
	assert.LessOrEqual(t, st.Entries, 20)
}
