package newsagg

import (
	"slices"
	"sync"
	"time"
)

// process-local key/value store with a single TTL clock per key
type ttlStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.Mutex
	entries map[string]ttlEntry
}

type ttlEntry struct {
	value     any
	expiresAt time.Time
}

// return a new ttl store
func newTTLStore(ttl time.Duration) *ttlStore {
	return &ttlStore{
		ttl:     ttl,
		clock:   time.Now,
		entries: map[string]ttlEntry{},
	}
}

// get returns the live value of `key`, evicting it if expired.
func (s *ttlStore) get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.liveLocked(key, s.clock())
}

// set stores `value` under `key` and (re)starts its TTL clock.
func (s *ttlStore) set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	s.entries[key] = ttlEntry{value: value, expiresAt: now.Add(s.ttl)}
}

// update replaces the value of `key` with the result of `fn` atomically
// and (re)starts its TTL clock.
func (s *ttlStore) update(key string, fn func(old any, exists bool) any) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	old, exists := s.liveLocked(key, now)
	value := fn(old, exists)
	s.entries[key] = ttlEntry{value: value, expiresAt: now.Add(s.ttl)}

	return value
}

// modify replaces the value of a live `key` without touching its expiry.
func (s *ttlStore) modify(key string, fn func(old any) any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.liveLocked(key, s.clock())
	if !exists {
		return false
	}
	entry := s.entries[key]
	entry.value = fn(old)
	s.entries[key] = entry

	return true
}

// delete removes `key`.
func (s *ttlStore) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
}

// keys returns the sorted live keys.
func (s *ttlStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		if _, live := s.liveLocked(key, now); live {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	return keys
}

func (s *ttlStore) liveLocked(key string, now time.Time) (any, bool) {
	entry, exists := s.entries[key]
	if !exists {
		return nil, false
	}
	if !now.Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return entry.value, true
}
