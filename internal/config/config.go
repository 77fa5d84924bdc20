package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Host           string
	Port           string
	RequestTimeout time.Duration

	// Source fetching
	AssetsDir         string
	ImageFetchTimeout time.Duration
	AzureAccountName  string
	AzureAccountKey   string

	// Cache hierarchy
	CacheDir         string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisCompression bool
	CacheTTL         time.Duration
	MemoryCacheSize  int
	CleanupInterval  time.Duration

	// Worker pool; 0 derives the size from the CPU count.
	WorkerPoolSize int

	// Transformation pipeline
	MemoryThresholdMB int64
	MaxSourceBytes    int64
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

func LoadFromEnv() (*Config, error) {
	// Set defaults
	cfg := &Config{
		Host:           getEnvOrDefault("HOST", "0.0.0.0"),
		Port:           getEnvOrDefault("PORT", "8080"),
		RequestTimeout: parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),

		AssetsDir:         getEnvOrDefault("ASSETS_DIR", "./assets"),
		ImageFetchTimeout: parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		AzureAccountName:  os.Getenv("AZURE_ACCOUNT_NAME"),
		AzureAccountKey:   os.Getenv("AZURE_ACCOUNT_KEY"),

		CacheDir:         getEnvOrDefault("CACHE_DIR", ""),
		RedisAddr:        getEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          int(parseIntOrDefault("REDIS_DB", 0)),
		RedisCompression: parseBoolOrDefault("REDIS_COMPRESSION", true),
		CacheTTL:         parseDurationOrDefault("CACHE_TTL", 24*time.Hour),
		MemoryCacheSize:  int(parseIntOrDefault("MEMORY_CACHE_SIZE", 100)),
		CleanupInterval:  parseDurationOrDefault("CACHE_CLEANUP_INTERVAL", 10*time.Minute),

		WorkerPoolSize: int(parseIntOrDefault("WORKER_POOL_SIZE", 0)),

		MemoryThresholdMB: parseIntOrDefault("MEMORY_THRESHOLD_MB", 500),
		MaxSourceBytes:    parseIntOrDefault("MAX_SOURCE_BYTES", 32*1024*1024), // 32MB
	}

	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}
	if cfg.RequestTimeout <= 0 || cfg.ImageFetchTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s)",
			cfg.RequestTimeout, cfg.ImageFetchTimeout)
	}
	if cfg.MemoryCacheSize <= 0 {
		return nil, fmt.Errorf("MEMORY_CACHE_SIZE must be > 0 (got %d)", cfg.MemoryCacheSize)
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("CACHE_TTL must be > 0 (got %s)", cfg.CacheTTL)
	}
	if cfg.WorkerPoolSize < 0 {
		return nil, fmt.Errorf("WORKER_POOL_SIZE must be >= 0 (got %d)", cfg.WorkerPoolSize)
	}
	if cfg.MaxSourceBytes <= 0 {
		return nil, fmt.Errorf("MAX_SOURCE_BYTES must be > 0 (got %d)", cfg.MaxSourceBytes)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
