package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"go-image-optimizer/internal/logger"
)

const (
	payloadPrefix = "img:opt:"
	metaPrefix    = "img:meta:"
	accessIndex   = "img:idx:access"
	sizeIndex     = "img:idx:size"

	encodingBase64     = "base64"
	encodingGzipBase64 = "gzip+base64"

	// Payloads below this size are not worth the gzip round-trip.
	compressThreshold = 1024
)

// redisEnvelope is the primary record stored per key.
type redisEnvelope struct {
	Encoding  string    `json:"encoding"`
	Data      string    `json:"data"`
	Meta      Metadata  `json:"meta"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisCache is the distributed tier for multi-instance deployments.
//
// Per key it keeps a TTL-bound primary record plus a metadata-only hash
// for cheap introspection, and maintains two global sorted sets (one
// scored by last access time, one by payload byte size) that drive the
// Optimize maintenance sweep.
//
// Connectivity is never verified up front: an unreachable backend simply
// turns every Get into a miss and every Set into a rejected write.
type RedisCache struct {
	client   *redis.Client
	ttl      time.Duration
	compress bool
	counters counters
}

// RedisConfig holds the distributed tier settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Compress bool
}

// NewRedisCache builds the distributed tier around a go-redis client.
func NewRedisCache(cfg RedisConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return &RedisCache{
		client:   client,
		ttl:      cfg.TTL,
		compress: cfg.Compress,
	}
}

func (c *RedisCache) Name() string { return "redis" }

func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, bool) {
	raw, err := c.client.Get(ctx, payloadPrefix+key).Result()
	if err != nil {
		if err == redis.Nil {
			// The TTL expired the primary record; drop the stale index
			// members so the sweep and ZCard-based stats stay honest.
			c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.ZRem(ctx, accessIndex, key)
				pipe.ZRem(ctx, sizeIndex, key)
				return nil
			})
		} else {
			c.counters.errors.Add(1)
			logger.WithError(err).WithField("key", key).Debug("Redis cache read failed")
		}
		c.counters.misses.Add(1)
		return nil, false
	}

	var env redisEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		c.counters.errors.Add(1)
		logger.WithError(err).WithField("key", key).Warn("Redis cache entry corrupt")
		c.counters.misses.Add(1)
		return nil, false
	}

	data, err := decodePayload(env)
	if err != nil {
		c.counters.errors.Add(1)
		logger.WithError(err).WithField("key", key).Warn("Redis payload decode failed")
		c.counters.misses.Add(1)
		return nil, false
	}

	// Refresh the access index; best effort only.
	c.client.ZAdd(ctx, accessIndex, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: key,
	})

	c.counters.hits.Add(1)
	return &Entry{Data: data, Meta: env.Meta, CreatedAt: env.CreatedAt}, true
}

func (c *RedisCache) Set(ctx context.Context, key string, entry *Entry) bool {
	if entry == nil {
		return false
	}

	env := redisEnvelope{
		Meta:      entry.Meta,
		CreatedAt: entry.CreatedAt,
	}
	if env.CreatedAt.IsZero() {
		env.CreatedAt = time.Now()
	}

	payload := entry.Data
	env.Encoding = encodingBase64
	if c.compress && len(payload) >= compressThreshold {
		compressed, err := gzipBytes(payload)
		if err == nil && len(compressed) < len(payload) {
			payload = compressed
			env.Encoding = encodingGzipBase64
		}
	}
	env.Data = base64.StdEncoding.EncodeToString(payload)

	raw, err := json.Marshal(env)
	if err != nil {
		c.counters.errors.Add(1)
		logger.WithError(err).WithField("key", key).Warn("Redis envelope marshal failed")
		return false
	}

	now := float64(time.Now().Unix())
	_, err = c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, payloadPrefix+key, raw, c.ttl)
		pipe.HSet(ctx, metaPrefix+key, map[string]interface{}{
			"format":        entry.Meta.Format,
			"width":         entry.Meta.Width,
			"height":        entry.Meta.Height,
			"channels":      entry.Meta.Channels,
			"original_size": entry.Meta.OriginalSize,
			"size":          len(entry.Data),
			"encoding":      env.Encoding,
		})
		pipe.Expire(ctx, metaPrefix+key, c.ttl)
		pipe.ZAdd(ctx, accessIndex, redis.Z{Score: now, Member: key})
		pipe.ZAdd(ctx, sizeIndex, redis.Z{Score: float64(len(entry.Data)), Member: key})
		return nil
	})
	if err != nil {
		c.counters.errors.Add(1)
		logger.WithError(err).WithField("key", key).Debug("Redis cache write failed")
		return false
	}

	c.counters.sets.Add(1)
	return true
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, payloadPrefix+key, metaPrefix+key)
		pipe.ZRem(ctx, accessIndex, key)
		pipe.ZRem(ctx, sizeIndex, key)
		return nil
	})
}

func (c *RedisCache) Stats() Stats {
	entries, err := c.client.ZCard(context.Background(), accessIndex).Result()
	if err != nil {
		entries = 0
	}
	return c.counters.snapshot(entries)
}

// Optimize runs the maintenance sweep: it intersects the coldest entries
// (by access time) with the largest (by payload size) and evicts the
// intersection, reclaiming space held by large, rarely-used items first.
// Returns the number of evicted keys.
func (c *RedisCache) Optimize(ctx context.Context, coldest, largest int) int {
	cold, err := c.client.ZRange(ctx, accessIndex, 0, int64(coldest-1)).Result()
	if err != nil {
		c.counters.errors.Add(1)
		logger.WithError(err).Debug("Redis sweep skipped, access index unavailable")
		return 0
	}
	large, err := c.client.ZRevRange(ctx, sizeIndex, 0, int64(largest-1)).Result()
	if err != nil {
		c.counters.errors.Add(1)
		logger.WithError(err).Debug("Redis sweep skipped, size index unavailable")
		return 0
	}

	inLarge := make(map[string]struct{}, len(large))
	for _, k := range large {
		inLarge[k] = struct{}{}
	}

	evicted := 0
	for _, key := range cold {
		if _, ok := inLarge[key]; !ok {
			continue
		}
		c.Delete(ctx, key)
		evicted++
	}
	if evicted > 0 {
		c.counters.evictions.Add(int64(evicted))
		logger.WithFields(logrus.Fields{
			"evicted": evicted,
			"scanned": len(cold),
		}).Info("Redis cache sweep evicted cold large entries")
	}
	return evicted
}

// Ping reports backend reachability; used by health checks only.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodePayload(env redisEnvelope) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	switch env.Encoding {
	case encodingGzipBase64:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip open: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gzip read: %w", err)
		}
		return out, nil
	case encodingBase64, "":
		return data, nil
	default:
		return nil, fmt.Errorf("unknown payload encoding %q", env.Encoding)
	}
}
