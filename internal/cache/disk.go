package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go-image-optimizer/internal/logger"
)

// diskRecord is the serialized form of one disk-tier entry. The payload
// travels through encoding/json's []byte handling, which base64-encodes
// it inside the file.
type diskRecord struct {
	Key       string    `json:"key"`
	Meta      Metadata  `json:"meta"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DiskCache is the second tier: one JSON file per cache key under a
// dedicated directory. Every I/O failure is logged and reported as a miss
// or a rejected set; the request path never sees a disk error.
type DiskCache struct {
	dir      string
	ttl      time.Duration
	counters counters
	entries  atomic.Int64
}

// NewDiskCache creates the cache directory if needed and returns the tier.
func NewDiskCache(dir string, ttl time.Duration) (*DiskCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("disk cache directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	c := &DiskCache{dir: dir, ttl: ttl}
	c.entries.Store(int64(len(c.listFiles())))
	return c, nil
}

func (c *DiskCache) Name() string { return "disk" }

func (c *DiskCache) Get(_ context.Context, key string) (*Entry, bool) {
	raw, err := os.ReadFile(c.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			c.counters.errors.Add(1)
			logger.WithError(err).WithField("key", key).Warn("Disk cache read failed")
		}
		c.counters.misses.Add(1)
		return nil, false
	}

	var rec diskRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.counters.errors.Add(1)
		logger.WithError(err).WithField("key", key).Warn("Disk cache entry corrupt, removing")
		c.remove(key)
		c.counters.misses.Add(1)
		return nil, false
	}

	if !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt) {
		c.remove(key)
		c.counters.misses.Add(1)
		return nil, false
	}

	c.counters.hits.Add(1)
	return &Entry{Data: rec.Data, Meta: rec.Meta, CreatedAt: rec.CreatedAt}, true
}

func (c *DiskCache) Set(_ context.Context, key string, entry *Entry) bool {
	if entry == nil {
		return false
	}

	rec := diskRecord{
		Key:       key,
		Meta:      entry.Meta,
		Data:      entry.Data,
		CreatedAt: entry.CreatedAt,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if c.ttl > 0 {
		rec.ExpiresAt = rec.CreatedAt.Add(c.ttl)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		c.counters.errors.Add(1)
		logger.WithError(err).WithField("key", key).Warn("Disk cache marshal failed")
		return false
	}

	// Write to a temp file first so readers never observe a partial entry.
	tmp, err := os.CreateTemp(c.dir, "entry-*.tmp")
	if err != nil {
		c.counters.errors.Add(1)
		logger.WithError(err).WithField("key", key).Warn("Disk cache write failed")
		return false
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		c.counters.errors.Add(1)
		logger.WithError(err).WithField("key", key).Warn("Disk cache write failed")
		return false
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		c.counters.errors.Add(1)
		logger.WithError(err).WithField("key", key).Warn("Disk cache write failed")
		return false
	}
	_, statErr := os.Stat(c.path(key))
	existed := statErr == nil
	if err := os.Rename(tmpName, c.path(key)); err != nil {
		os.Remove(tmpName)
		c.counters.errors.Add(1)
		logger.WithError(err).WithField("key", key).Warn("Disk cache rename failed")
		return false
	}

	c.counters.sets.Add(1)
	// Counted incrementally; Cleanup reconciles against the directory.
	if !existed {
		c.entries.Add(1)
	}
	return true
}

func (c *DiskCache) Delete(_ context.Context, key string) {
	c.remove(key)
}

func (c *DiskCache) Stats() Stats {
	return c.counters.snapshot(c.entries.Load())
}

// Cleanup removes every expired entry file. Called by the maintenance
// janitor, never by the request path.
func (c *DiskCache) Cleanup() int {
	removed := 0
	now := time.Now()
	for _, name := range c.listFiles() {
		raw, err := os.ReadFile(filepath.Join(c.dir, name))
		if err != nil {
			continue
		}
		var rec diskRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			os.Remove(filepath.Join(c.dir, name))
			removed++
			continue
		}
		if !rec.ExpiresAt.IsZero() && now.After(rec.ExpiresAt) {
			os.Remove(filepath.Join(c.dir, name))
			removed++
		}
	}
	if removed > 0 {
		c.counters.evictions.Add(int64(removed))
	}
	c.entries.Store(int64(len(c.listFiles())))
	return removed
}

func (c *DiskCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *DiskCache) remove(key string) {
	if err := os.Remove(c.path(key)); err == nil {
		c.entries.Add(-1)
	}
}

func (c *DiskCache) listFiles() []string {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	return names
}
