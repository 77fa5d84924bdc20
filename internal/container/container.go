package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go-image-optimizer/internal/cache"
	"go-image-optimizer/internal/config"
	"go-image-optimizer/internal/logger"
	"go-image-optimizer/internal/observer"
	"go-image-optimizer/internal/optimizer"
	"go-image-optimizer/internal/pool"
	"go-image-optimizer/internal/responsive"
	"go-image-optimizer/internal/storage"
	"go-image-optimizer/internal/transform"
	"go-image-optimizer/internal/transport"
)

// Redis maintenance sweep: intersect the coldest and largest entries.
const (
	sweepColdest = 20
	sweepLargest = 20
)

// Container holds all application dependencies
type Container struct {
	config     *config.Config
	resolver   *storage.Resolver
	pipeline   *transform.Pipeline
	workerPool *pool.Pool
	memory     *cache.MemoryCache
	disk       *cache.DiskCache
	redis      *cache.RedisCache
	store      *cache.Tiered
	service    *optimizer.Service
	handler    http.Handler

	maintStop chan struct{}
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	// Source fetchers
	httpFetcher := storage.NewHTTPSourceFetcher(cfg.ImageFetchTimeout, cfg.MaxSourceBytes)
	localFetcher := storage.NewLocalSourceFetcher(cfg.AssetsDir, cfg.MaxSourceBytes)
	var blobFetcher storage.SourceFetcher
	if cfg.AzureAccountName != "" {
		azure, err := storage.NewAzureSourceFetcher(cfg.AzureAccountName, cfg.AzureAccountKey)
		if err != nil {
			return nil, fmt.Errorf("failed to build blob fetcher: %w", err)
		}
		blobFetcher = azure
	}
	resolver := storage.NewResolver(httpFetcher, localFetcher, blobFetcher)

	// Pipeline events
	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))

	// Transformation pipeline and worker pool
	pipeline := transform.NewPipeline(transform.NewSystemMemoryGuard(), cfg.MemoryThresholdMB)
	workerPool := pool.New(pipeline, cfg.WorkerPoolSize, nil, events)

	// Cache tiers: memory always, disk and redis when configured
	memory := cache.NewMemoryCache(cfg.MemoryCacheSize, cfg.CacheTTL)
	memory.StartJanitor(cfg.CleanupInterval)

	var disk *cache.DiskCache
	if cfg.CacheDir != "" {
		var err error
		if disk, err = cache.NewDiskCache(cfg.CacheDir, cfg.CacheTTL); err != nil {
			return nil, fmt.Errorf("failed to build disk cache: %w", err)
		}
	}

	var rds *cache.RedisCache
	if cfg.RedisAddr != "" {
		rds = cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
			Compress: cfg.RedisCompression,
		})
	}

	var store *cache.Tiered
	if disk != nil && rds != nil {
		store = cache.NewTiered(memory, disk, rds)
	} else if disk != nil {
		store = cache.NewTiered(memory, disk)
	} else if rds != nil {
		store = cache.NewTiered(memory, rds)
	} else {
		store = cache.NewTiered(memory)
	}

	service := optimizer.NewService(resolver, workerPool, store, responsive.NewGenerator("/api/optimize"), events)
	handler := transport.NewHandler(service, cfg)

	c := &Container{
		config:     cfg,
		resolver:   resolver,
		pipeline:   pipeline,
		workerPool: workerPool,
		memory:     memory,
		disk:       disk,
		redis:      rds,
		store:      store,
		service:    service,
		handler:    handler,
		maintStop:  make(chan struct{}),
	}
	go c.maintenanceLoop(cfg.CleanupInterval)
	return c, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Service returns the optimizer service
func (c *Container) Service() *optimizer.Service {
	return c.service
}

// maintenanceLoop sweeps the slower tiers on the cleanup interval: expired
// files off the disk tier, cold-and-large entries out of the distributed
// tier.
func (c *Container) maintenanceLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if c.disk != nil {
				if n := c.disk.Cleanup(); n > 0 {
					logger.WithField("removed", n).Debug("Disk cache cleanup")
				}
			}
			if c.redis != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if n := c.redis.Optimize(ctx, sweepColdest, sweepLargest); n > 0 {
					logger.WithField("evicted", n).Debug("Distributed cache sweep")
				}
				cancel()
			}
		case <-c.maintStop:
			return
		}
	}
}

// Shutdown stops background work: the maintenance loop, the memory-tier
// janitor, the worker pool, and the redis connection.
func (c *Container) Shutdown() {
	close(c.maintStop)
	c.memory.Stop()
	c.workerPool.Close()
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close redis client")
		}
	}
}
