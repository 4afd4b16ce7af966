package cache

import (
	"sync"
	"time"

	"github.com/i474232898/weather-sync/internal/weather"
)

// Entry is one cached forecast for a location. Entries are replaced
// wholesale on every write, never merged.
type Entry struct {
	Location   weather.Location
	Set        weather.ForecastSet
	CapturedAt time.Time
}

// Store is the contract the in-memory store (and any future persistent
// store) must satisfy. Persistence-layer faults surface as a miss.
type Store interface {
	Read(loc weather.Location) (Entry, bool)
	Write(loc weather.Location, set weather.ForecastSet)
	IsValid(loc weather.Location, expiry time.Duration) bool
}

// MemoryStore is a concurrency-safe in-memory Store. Keys partition the
// store, so last-writer-wins per key needs no cross-key coordination.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	clock   weather.Clock
}

// NewMemoryStore creates an empty store. A nil clock means time.Now.
func NewMemoryStore(clock weather.Clock) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]Entry),
		clock:   clock,
	}
}

// Read returns the entry for loc, if any.
func (s *MemoryStore) Read(loc weather.Location) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[loc.Key()]
	return entry, ok
}

// Write atomically replaces the entry for loc.
func (s *MemoryStore) Write(loc weather.Location, set weather.ForecastSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[loc.Key()] = Entry{
		Location:   loc,
		Set:        set,
		CapturedAt: s.clock().UTC(),
	}
}

// IsValid reports whether an entry exists for loc and is younger than
// expiry. Expired entries stay readable as fallback data.
func (s *MemoryStore) IsValid(loc weather.Location, expiry time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[loc.Key()]
	if !ok {
		return false
	}
	return s.clock().Sub(entry.CapturedAt) < expiry
}
