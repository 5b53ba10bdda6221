package newsagg

// delivery cursor: per-keyword count of articles already surfaced
//
// Counts live in a TTL store, so a cursor disappears (reads as 0) together
// with the cache entry it was advanced for.
type cursorStore struct {
	store *ttlStore
}

// return a new cursor store on given ttl store
func newCursorStore(store *ttlStore) *cursorStore {
	return &cursorStore{store: store}
}

// Count returns the current count of `keyword`, 0 if missing or expired.
func (c *cursorStore) Count(keyword string) int {
	if value, exists := c.store.get(countKey(keyword)); exists {
		return value.(int)
	}
	return 0
}

// Advance increases the count of `keyword` by `n` and returns the new count.
func (c *cursorStore) Advance(keyword string, n int) int {
	if n <= 0 {
		return c.Count(keyword)
	}

	return c.store.update(countKey(keyword), func(old any, exists bool) any {
		if exists {
			return old.(int) + n
		}
		return n
	}).(int)
}

// Reset drops the count of `keyword`.
func (c *cursorStore) Reset(keyword string) {
	c.store.delete(countKey(keyword))
}
