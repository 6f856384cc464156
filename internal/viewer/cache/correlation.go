// Package cache implements the live-view result correlation cache: a
// bounded, per-entry-TTL LRU mapping frame_id to the most recently
// published result for that frame.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"ivis-core/internal/contracts"
)

const (
	defaultMaxEntries = 2000
	defaultTTL        = 60 * time.Second
)

// Correlation is a thin wrapper over expirable.LRU exposing the exact
// put/get/len surface spec §4.7 describes: put removes any existing entry
// for key then inserts at MRU with the current timestamp (the library's
// own Add already evicts expired and over-capacity entries around that
// insert); get returns (value, false) for an absent or expired key and
// otherwise promotes the entry to MRU; len reports current occupancy.
type Correlation struct {
	lru *expirable.LRU[string, contracts.ResultContractV1]
}

// New constructs a correlation cache. maxEntries <= 0 defaults to 2000;
// ttl <= 0 defaults to 60 seconds.
func New(maxEntries int, ttl time.Duration) *Correlation {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Correlation{lru: expirable.NewLRU[string, contracts.ResultContractV1](maxEntries, nil, ttl)}
}

// Put inserts or replaces the result correlated with frameID, at MRU with
// a fresh TTL.
func (c *Correlation) Put(frameID string, result contracts.ResultContractV1) {
	c.lru.Add(frameID, result)
}

// Get returns the result correlated with frameID, or ok=false if absent or
// expired. A successful lookup promotes the entry to MRU.
func (c *Correlation) Get(frameID string) (result contracts.ResultContractV1, ok bool) {
	return c.lru.Get(frameID)
}

// Len reports the cache's current occupancy.
func (c *Correlation) Len() int {
	return c.lru.Len()
}
