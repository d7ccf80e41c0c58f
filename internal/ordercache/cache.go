// Package ordercache keeps a bounded, time-limited mirror of exchange order
// states fed by push events. It is the first stop for every "is this order
// filled" question, keeping fill detection O(1) and off the REST rate limit.
// A miss is not an error: callers fall back to a REST check and must treat
// unknown as not-yet-confirmed, never as closed.
package ordercache

import (
	"sync"
	"time"

	"trade_engine/internal/models"
)

// CachedOrderState is the last pushed state of one exchange order.
type CachedOrderState struct {
	OrderID   string
	Exchange  string
	Symbol    string
	Status    models.OrderStatus
	FilledQty float64
	AvgPrice  float64
	UpdatedAt time.Time
}

type entry struct {
	state     CachedOrderState
	expiresAt time.Time
}

// Cache is shared read/write within one process only; cross-process truth is
// always the datastore plus the exchange.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*entry // key: exchange + ":" + orderID
	ttl        time.Duration
	maxEntries int
}

func New(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 2000
	}
	return &Cache{
		entries:    make(map[string]*entry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

func key(orderID, exchange string) string {
	return exchange + ":" + orderID
}

// Update overwrites/creates the entry for an order, normalizing the raw
// exchange status vocabulary. Evicts oldest entries when over capacity.
func (c *Cache) Update(orderID, exchange string, symbol, rawStatus string, filledQty, avgPrice float64) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key(orderID, exchange)] = &entry{
		state: CachedOrderState{
			OrderID:   orderID,
			Exchange:  exchange,
			Symbol:    symbol,
			Status:    models.NormalizeOrderStatus(rawStatus),
			FilledQty: filledQty,
			AvgPrice:  avgPrice,
			UpdatedAt: now,
		},
		expiresAt: now.Add(c.ttl),
	}

	if len(c.entries) > c.maxEntries {
		c.evictOldestLocked(len(c.entries) - c.maxEntries)
	}
}

// Get returns the cached state if present and not expired. Expired entries are
// treated as absent even before eviction removes them.
func (c *Cache) Get(orderID, exchange string) (CachedOrderState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key(orderID, exchange)]
	if !ok || time.Now().After(e.expiresAt) {
		return CachedOrderState{}, false
	}
	return e.state, true
}

// Len is the physical entry count, expired included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) evictOldestLocked(n int) {
	for i := 0; i < n; i++ {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.state.UpdatedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.state.UpdatedAt
			}
		}
		if oldestKey == "" {
			return
		}
		delete(c.entries, oldestKey)
	}
}
