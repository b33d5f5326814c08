// Package companycache deduplicates company fetches within a single crawl
// run: each unique company URL hits the network at most once, and repeat
// encounters only bump the record's last-seen timestamp.
package companycache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"rawjobs-crawler/internal/metrics"
	"rawjobs-crawler/internal/schema"
)

// CompanyFetcher is the slice of the company extractor the cache needs.
type CompanyFetcher interface {
	Extract(ctx context.Context, companyURL string, nameHint *string, now time.Time) (schema.CompanyRecord, []byte, error)
}

// Cache maps normalized company URLs to their fetched records. Lookups are
// safe to interleave with extraction; the singleflight group keeps the
// at-most-once-fetch invariant even if extraction is parallelized per job.
type Cache struct {
	fetcher CompanyFetcher
	now     func() time.Time

	mu      sync.Mutex
	records map[string]*schema.CompanyRecord
	order   []string
	group   singleflight.Group
}

// New builds a cache for one crawl run. A nil now defaults to time.Now.
func New(fetcher CompanyFetcher, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		fetcher: fetcher,
		now:     now,
		records: make(map[string]*schema.CompanyRecord),
	}
}

// GetOrFetch returns the record for a company URL. On a hit it performs zero
// network I/O and bumps last-seen. On a miss it fetches through the company
// extractor, stores the record, and returns the raw page body for snapshot
// archiving. fetched reports whether this call caused the network fetch.
func (c *Cache) GetOrFetch(ctx context.Context, companyURL string, nameHint *string) (record *schema.CompanyRecord, fetched bool, body []byte, err error) {
	key, err := Normalize(companyURL)
	if err != nil {
		return nil, false, nil, err
	}

	c.mu.Lock()
	if rec, ok := c.records[key]; ok {
		rec.Timestamps.LastSeen = c.now().UTC()
		c.mu.Unlock()
		metrics.ObserveCacheLookup(true)
		return rec, false, nil, nil
	}
	c.mu.Unlock()
	metrics.ObserveCacheLookup(false)

	result, fetchErr, shared := c.group.Do(key, func() (any, error) {
		rec, pageBody, err := c.fetcher.Extract(ctx, companyURL, nameHint, c.now())
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.records[key] = &rec
		c.order = append(c.order, key)
		c.mu.Unlock()
		return pageBody, nil
	})
	if fetchErr != nil {
		return nil, false, nil, fmt.Errorf("company fetch for %s: %w", key, fetchErr)
	}

	c.mu.Lock()
	rec := c.records[key]
	if shared {
		// Joined an in-flight fetch: a repeat encounter, not a new fetch.
		rec.Timestamps.LastSeen = c.now().UTC()
	}
	c.mu.Unlock()

	pageBody, _ := result.([]byte)
	if shared {
		return rec, false, nil, nil
	}
	return rec, true, pageBody, nil
}

// Records returns all cached company records in first-fetch order.
func (c *Cache) Records() []schema.CompanyRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schema.CompanyRecord, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, *c.records[key])
	}
	return out
}

// Len reports how many unique companies were fetched so far.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}
