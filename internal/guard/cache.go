package guard

import (
	"sync"
	"time"

	"github.com/kasiviral/kasiviral-backend/pkg/apiclient"
)

const defaultCacheTTL = 30 * time.Second

type cacheEntry struct {
	view      apiclient.EntitlementView
	fetchedAt time.Time
}

// Cache holds the last entitlement view per subject. Entries go stale after
// the TTL and are never refreshed implicitly.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, now: now, entries: map[string]cacheEntry{}}
}

// Get returns the cached view and whether it is still fresh.
func (c *Cache) Get(subjectID string) (apiclient.EntitlementView, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[subjectID]
	if !ok {
		return apiclient.EntitlementView{}, false, false
	}
	fresh := c.now().Sub(entry.fetchedAt) < c.ttl
	return entry.view, fresh, true
}

func (c *Cache) Put(subjectID string, view apiclient.EntitlementView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[subjectID] = cacheEntry{view: view, fetchedAt: c.now()}
}

func (c *Cache) Invalidate(subjectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, subjectID)
}

// Clear drops every entry. Called on sign-out.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]cacheEntry{}
}
