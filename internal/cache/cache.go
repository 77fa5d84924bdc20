// Package cache implements the three-tier cache hierarchy for optimized
// image payloads: a bounded in-process tier, an on-disk tier, and a
// Redis-backed distributed tier, composed as a read-through chain.
//
// Backend failures never propagate: every tier degrades to a miss on Get
// and to a false status on Set, so a cache outage can slow the pipeline
// down but never break it.
package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// Metadata describes the decoded output stored alongside a payload.
type Metadata struct {
	Format       string `json:"format"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Channels     int    `json:"channels"`
	OriginalSize int    `json:"original_size"`
}

// Entry is one cached payload plus its metadata. Tiers store and return
// copies; callers may hold a returned Entry without worrying about later
// mutation.
type Entry struct {
	Data      []byte    `json:"data"`
	Meta      Metadata  `json:"meta"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	data := make([]byte, len(e.Data))
	copy(data, e.Data)
	return &Entry{Data: data, Meta: e.Meta, CreatedAt: e.CreatedAt}
}

// Stats is a point-in-time snapshot of a tier's counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Evictions int64 `json:"evictions"`
	Errors    int64 `json:"errors"`
	Entries   int64 `json:"entries"`
}

// counters is the shared atomic backing for tier stats.
type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
	errors    atomic.Int64
}

func (c *counters) snapshot(entries int64) Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Evictions: c.evictions.Load(),
		Errors:    c.errors.Load(),
		Entries:   entries,
	}
}

// Cache is the contract every tier implements.
//
// Get reports a miss (not an error) when the key is absent, expired, or
// the backend is unreachable. Set reports acceptance; a false return means
// the tier could not store the entry and has already logged why.
type Cache interface {
	Name() string
	Get(ctx context.Context, key string) (*Entry, bool)
	Set(ctx context.Context, key string, entry *Entry) bool
	Delete(ctx context.Context, key string)
	Stats() Stats
}
