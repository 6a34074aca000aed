package domain

import "time"

// CollectStats holds statistics about one collection run.
type CollectStats struct {
	Fetched    int
	Persisted  int
	Duplicates int
	Errors     int
	Published  int
	PerSource  map[Source]int
	Duration   time.Duration
}

// NewCollectStats returns stats with the per-source map initialized.
func NewCollectStats() *CollectStats {
	return &CollectStats{PerSource: make(map[Source]int)}
}
