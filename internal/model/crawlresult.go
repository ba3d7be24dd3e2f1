package model

// CrawlResult accumulates deduplicated records across queries. Later
// occurrences of an already-seen key are discarded: the first record
// wins, whatever the other fields say. No field-level merging happens.
type CrawlResult struct {
	records    []BusinessRecord
	index      map[string]struct{}
	QueriesRun []string
}

// NewCrawlResult returns an empty result set.
func NewCrawlResult() *CrawlResult {
	return &CrawlResult{index: make(map[string]struct{})}
}

// Add inserts the record unless its key has been seen before. It reports
// whether the record was kept. Records with an empty key (no registration
// ID and no name) are dropped.
func (c *CrawlResult) Add(r BusinessRecord) bool {
	key := r.Key()
	if key == "" {
		return false
	}
	if _, seen := c.index[key]; seen {
		return false
	}
	c.index[key] = struct{}{}
	c.records = append(c.records, r)
	return true
}

// AddAll inserts records in order and returns how many were kept.
func (c *CrawlResult) AddAll(records []BusinessRecord) int {
	kept := 0
	for _, r := range records {
		if c.Add(r) {
			kept++
		}
	}
	return kept
}

// Records returns the deduplicated records in insertion order. The
// returned slice is the result's backing storage; callers hand it off,
// they do not mutate it.
func (c *CrawlResult) Records() []BusinessRecord {
	if c.records == nil {
		return []BusinessRecord{}
	}
	return c.records
}

// Len returns the number of unique records accumulated so far.
func (c *CrawlResult) Len() int {
	return len(c.records)
}
