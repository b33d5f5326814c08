package extract

import "rawjobs-crawler/internal/schema"

// Tracker accumulates selector outcomes for one record and computes its
// quality rating. Policy: high only when every expected selector group
// matched and the fetch needed no retries; medium when the fetch retried or
// exactly one expected group missed; low when two or more expected groups
// missed.
type Tracker struct {
	hits    int
	misses  int
	retries int
	history []int
}

// NewTracker seeds a tracker with the fetch-level retry data.
func NewTracker(retries int, statusHistory []int) *Tracker {
	return &Tracker{
		retries: retries,
		history: append([]int(nil), statusHistory...),
	}
}

// Hit records a matched selector group.
func (t *Tracker) Hit() {
	t.hits++
}

// Miss records an expected selector group that found nothing.
func (t *Tracker) Miss() {
	t.misses++
}

// HitIf is a convenience wrapper for optional groups: a match counts as a
// hit, absence is not held against the record.
func (t *Tracker) HitIf(matched bool) {
	if matched {
		t.hits++
	}
}

// Rating computes the quality enum from the accumulated outcomes.
func (t *Tracker) Rating() schema.Quality {
	switch {
	case t.misses >= 2:
		return schema.QualityLow
	case t.misses == 1 || t.retries > 0:
		return schema.QualityMedium
	default:
		return schema.QualityHigh
	}
}

// Tracking snapshots the tracker into the record's quality block.
func (t *Tracker) Tracking() schema.QualityTracking {
	return schema.QualityTracking{
		ExtractionQuality: t.Rating(),
		SelectorHits:      t.hits,
		StatusCodeHistory: t.history,
		RetryCount:        t.retries,
	}
}
