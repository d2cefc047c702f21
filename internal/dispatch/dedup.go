package dispatch

import (
	"sync"
	"time"
)

type dedupEntry struct {
	jobID      string
	acceptedAt time.Time
}

// Outcome is the result of a dedup check
type Outcome struct {
	JobID   string
	Deduped bool
}

// DedupIndex remembers the last accepted job per dispatch key. A trigger for
// the same key within the window resolves to that job instead of a new one.
type DedupIndex struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]dedupEntry
}

// NewDedupIndex creates an index with the given window. A zero window
// disables deduplication.
func NewDedupIndex(window time.Duration) *DedupIndex {
	return &DedupIndex{
		window:  window,
		entries: make(map[string]dedupEntry),
	}
}

// AcceptOrDedup either returns the job already accepted for key within the
// window or calls create and records the new job as the latest for key.
// The check, create and record happen under one lock so concurrent triggers
// for the same key collapse onto a single job. create must not block.
// When create fails the index is unchanged.
func (d *DedupIndex) AcceptOrDedup(key string, now time.Time, create func() (string, error)) (Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry, ok := d.entries[key]; ok && d.window > 0 && now.Sub(entry.acceptedAt) <= d.window {
		return Outcome{JobID: entry.jobID, Deduped: true}, nil
	}

	jobID, err := create()
	if err != nil {
		return Outcome{}, err
	}

	d.entries[key] = dedupEntry{jobID: jobID, acceptedAt: now}
	return Outcome{JobID: jobID}, nil
}

// Prune drops entries whose window has elapsed and returns how many were removed
func (d *DedupIndex) Prune(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for key, entry := range d.entries {
		if now.Sub(entry.acceptedAt) > d.window {
			delete(d.entries, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys
func (d *DedupIndex) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
