package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/svanlent/seller-scraper/internal/metrics"
	"github.com/svanlent/seller-scraper/internal/models"
)

// RecordCache keeps recently parsed seller records in memory so repeated
// lookups within the TTL skip the marketplace fetch entirely.
type RecordCache struct {
	lru     *expirable.LRU[int64, *models.SellerRecord]
	metrics *metrics.Metrics
}

// New builds a cache holding up to size records for at most ttl each.
func New(size int, ttl time.Duration, m *metrics.Metrics) *RecordCache {
	if size <= 0 {
		size = 1024
	}
	return &RecordCache{
		lru:     expirable.NewLRU[int64, *models.SellerRecord](size, nil, ttl),
		metrics: m,
	}
}

// Get returns the cached record for sellerID when present and fresh.
func (c *RecordCache) Get(sellerID int64) (*models.SellerRecord, bool) {
	record, ok := c.lru.Get(sellerID)
	if ok {
		c.metrics.IncCacheHit()
		return record, true
	}
	c.metrics.IncCacheMiss()
	return nil, false
}

// Put stores a record under its seller ID.
func (c *RecordCache) Put(record *models.SellerRecord) {
	if record == nil {
		return
	}
	c.lru.Add(record.SellerID, record)
}

// Remove drops the cached record for sellerID.
func (c *RecordCache) Remove(sellerID int64) {
	c.lru.Remove(sellerID)
}

func (c *RecordCache) Len() int {
	return c.lru.Len()
}
