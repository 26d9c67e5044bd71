package engine

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/roach88/conformity/internal/ir"
)

// Cache defaults.
const (
	DefaultResultCacheSize  = 256
	DefaultResultCacheTTL   = 30 * time.Minute
	DefaultContentCacheSize = 512
	DefaultContentCacheTTL  = 30 * time.Minute
)

// finished is a terminal analysis kept for Status and Result lookups after
// it leaves the live set.
type finished struct {
	status ir.AnalysisStatus
	result *ir.AnalysisResult
	err    error
}

// resultCache maps analysis id to its terminal outcome.
type resultCache struct {
	lru *expirable.LRU[string, finished]
}

func newResultCache(size int, ttl time.Duration) *resultCache {
	return &resultCache{lru: expirable.NewLRU[string, finished](size, nil, ttl)}
}

func (c *resultCache) put(id string, f finished) {
	c.lru.Add(id, f)
}

func (c *resultCache) get(id string) (finished, bool) {
	return c.lru.Get(id)
}

// contentCache maps a content key (text, effective config, classification)
// to a completed result. Only Completed analyses are ever added.
type contentCache struct {
	lru *expirable.LRU[string, ir.AnalysisResult]
}

func newContentCache(size int, ttl time.Duration) *contentCache {
	return &contentCache{lru: expirable.NewLRU[string, ir.AnalysisResult](size, nil, ttl)}
}

// get returns a copy of the cached result.
func (c *contentCache) get(key string) (ir.AnalysisResult, bool) {
	r, ok := c.lru.Get(key)
	if !ok {
		return ir.AnalysisResult{}, false
	}
	return r.Clone(), true
}

func (c *contentCache) put(key string, r ir.AnalysisResult) {
	c.lru.Add(key, r.Clone())
}

func (c *contentCache) contains(key string) bool {
	return c.lru.Contains(key)
}

func (c *contentCache) purge() {
	c.lru.Purge()
}

func (c *contentCache) len() int {
	return c.lru.Len()
}
