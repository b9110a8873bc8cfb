// Package datasetcache caches namespace filtered datasets for the current
// dataset generation.
package datasetcache

import (
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kubilitics/kubilitics-topoview/internal/models"
	"github.com/kubilitics/kubilitics-topoview/internal/pkg/metrics"
)

// Cache holds filtered datasets by (generation, namespace) with TTL. Thread-safe.
type Cache struct {
	lru *expirable.LRU[string, *models.Dataset]
}

// New returns a cache of at most size entries. If ttl <= 0 or size <= 0, Get
// always misses.
func New(size int, ttl time.Duration) *Cache {
	if ttl <= 0 || size <= 0 {
		return &Cache{}
	}
	return &Cache{lru: expirable.NewLRU[string, *models.Dataset](size, nil, ttl)}
}

func key(generation uint64, namespace string) string {
	return strconv.FormatUint(generation, 10) + "|" + namespace
}

// Get returns a cached dataset if present and not expired. Records hit/miss.
func (c *Cache) Get(generation uint64, namespace string) (*models.Dataset, bool) {
	if c.lru == nil {
		metrics.DatasetCacheMissesTotal.Inc()
		return nil, false
	}
	ds, ok := c.lru.Get(key(generation, namespace))
	if !ok {
		metrics.DatasetCacheMissesTotal.Inc()
		return nil, false
	}
	metrics.DatasetCacheHitsTotal.Inc()
	return ds, true
}

// Set stores the filtered dataset of a generation.
func (c *Cache) Set(generation uint64, namespace string, ds *models.Dataset) {
	if c.lru == nil || ds == nil {
		return
	}
	c.lru.Add(key(generation, namespace), ds)
}

// Purge drops every entry, typically when a new generation is published.
func (c *Cache) Purge() {
	if c.lru != nil {
		c.lru.Purge()
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
