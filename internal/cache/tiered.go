package cache

import (
	"context"

	"github.com/sirupsen/logrus"

	"go-image-optimizer/internal/logger"
)

// Tiered composes caches into a chain of responsibility. Reads probe the
// tiers in construction order and stop at the first hit; writes fan out to
// every tier. A tier that fails is skipped, never fatal.
type Tiered struct {
	tiers []Cache
}

// NewTiered builds the chain from fastest to slowest tier. Nil tiers are
// dropped so callers can pass optionally-configured backends directly.
func NewTiered(tiers ...Cache) *Tiered {
	chain := make([]Cache, 0, len(tiers))
	for _, t := range tiers {
		if t != nil {
			chain = append(chain, t)
		}
	}
	return &Tiered{tiers: chain}
}

func (t *Tiered) Name() string { return "tiered" }

// Get probes the tiers top-down and returns the first hit. Hits are not
// promoted into faster tiers; entries only enter a tier through the write
// fan-out after a transformation.
func (t *Tiered) Get(ctx context.Context, key string) (*Entry, bool) {
	for _, tier := range t.tiers {
		if entry, ok := tier.Get(ctx, key); ok {
			logger.WithFields(logrus.Fields{
				"tier": tier.Name(),
				"key":  key,
			}).Debug("Cache hit")
			return entry, true
		}
	}
	return nil, false
}

// Set writes the entry to every tier and reports whether at least one
// accepted it.
func (t *Tiered) Set(ctx context.Context, key string, entry *Entry) bool {
	stored := false
	for _, tier := range t.tiers {
		if tier.Set(ctx, key, entry) {
			stored = true
		}
	}
	return stored
}

// Delete removes the key from every tier.
func (t *Tiered) Delete(ctx context.Context, key string) {
	for _, tier := range t.tiers {
		tier.Delete(ctx, key)
	}
}

// Stats aggregates the chain's counters.
func (t *Tiered) Stats() Stats {
	var total Stats
	for _, tier := range t.tiers {
		s := tier.Stats()
		total.Hits += s.Hits
		total.Misses += s.Misses
		total.Sets += s.Sets
		total.Evictions += s.Evictions
		total.Errors += s.Errors
		total.Entries += s.Entries
	}
	return total
}

// TierStats returns per-tier snapshots keyed by tier name.
func (t *Tiered) TierStats() map[string]Stats {
	out := make(map[string]Stats, len(t.tiers))
	for _, tier := range t.tiers {
		out[tier.Name()] = tier.Stats()
	}
	return out
}
