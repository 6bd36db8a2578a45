// Package cache implements a bounded, concurrency-safe LRU store for
// small web objects, keyed by the raw request URI.
package cache

import "sync"

// Size limits for the whole store and for a single cached object.
// An object larger than MaxObjectSize is never cached, which also
// guarantees that eviction can always make room for a new entry.
const (
	MaxCacheSize  = 1024 * 1024
	MaxObjectSize = 100 * 1024
)

// entry is one cached web object. The body is copied on insert and never
// mutated afterwards, so a reader that obtained it from Lookup may keep
// streaming it even if the entry is evicted in the meantime.
type entry struct {
	url     string
	body    []byte
	recency int
	refs    int
}

// Store maps request URIs to response bodies with least-recently-used
// eviction under a hard size ceiling.
//
// Recency is a logical clock: every Lookup or Insert ages every entry by
// one tick and resets the accessed entry to zero, so the entry with the
// largest counter is the least recently used. Because the clock must be
// advanced and observed consistently across the whole collection, all
// operations serialize on a single mutex. The lock is never held across
// network I/O.
type Store struct {
	mu        sync.Mutex
	entries   []*entry // index 0 is the most recent insertion
	totalSize int

	capacity      int
	maxObjectSize int

	hits      uint64
	misses    uint64
	evictions uint64
}

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	Entries   int    `json:"entries"`
	TotalSize int    `json:"total_size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Object is a claim on a cached body, handed out by Lookup. Release must
// be called once the caller is done streaming the body.
type Object struct {
	entry *entry
	store *Store
}

// Body returns the cached bytes. The slice must not be modified.
func (o *Object) Body() []byte {
	return o.entry.body
}

// Release drops the claim taken by Lookup.
func (o *Object) Release() {
	o.store.mu.Lock()
	o.entry.refs--
	o.store.mu.Unlock()
}

// New returns an empty store bounded by MaxCacheSize.
func New() *Store {
	return NewWithCapacity(MaxCacheSize, MaxObjectSize)
}

// NewWithCapacity returns an empty store with explicit bounds. Callers
// must keep maxObjectSize smaller than capacity so that eviction can
// always free enough space for an accepted object.
func NewWithCapacity(capacity, maxObjectSize int) *Store {
	return &Store{
		capacity:      capacity,
		maxObjectSize: maxObjectSize,
	}
}

// Lookup returns a claim on the cached body for url, or false if absent.
// It ticks the logical clock for every entry and marks the match as most
// recently used. Matching is exact key equality.
func (s *Store) Lookup(url string) (*Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick()
	e := s.find(url)
	if e == nil {
		s.misses++
		return nil, false
	}
	e.recency = 0
	e.refs++
	s.hits++
	return &Object{entry: e, store: s}, true
}

// Insert stores body under url. The call is a no-op when url is already
// present (the first successful insert wins) or when the body exceeds the
// single-object bound. The body is copied before the store takes
// ownership of it.
func (s *Store) Insert(url string, body []byte) {
	if len(body) > s.maxObjectSize {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick()
	if s.find(url) != nil {
		return
	}
	for s.totalSize+len(body) > s.capacity && len(s.entries) > 0 {
		s.evict()
	}
	e := &entry{
		url:  url,
		body: append([]byte(nil), body...),
	}
	s.entries = append([]*entry{e}, s.entries...)
	s.totalSize += len(e.body)
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Entries:   len(s.entries),
		TotalSize: s.totalSize,
		Capacity:  s.capacity,
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
	}
}

// tick advances the logical clock: one access ages every entry by one.
func (s *Store) tick() {
	for _, e := range s.entries {
		e.recency++
	}
}

func (s *Store) find(url string) *entry {
	for _, e := range s.entries {
		if e.url == url {
			return e
		}
	}
	return nil
}

// evict unlinks the least recently used entry, the one with the largest
// recency counter. Ties go to the earliest-inserted entry, which sits
// furthest from the front since inserts happen at index 0. Readers still
// holding a claim on the victim keep a valid body; the bytes are released
// once the last claim is dropped.
func (s *Store) evict() {
	idx := 0
	for i, e := range s.entries {
		if e.recency >= s.entries[idx].recency {
			idx = i
		}
	}
	victim := s.entries[idx]
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	s.totalSize -= len(victim.body)
	s.evictions++
}
