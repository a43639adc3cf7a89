package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/prism/pkg/compilecache"
	"github.com/platinummonkey/prism/pkg/lock"
	"github.com/platinummonkey/prism/pkg/observability"
	"github.com/platinummonkey/prism/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Cache configuration
	Cache CacheConfig

	// Lock configuration
	Lock LockConfig

	// Storage configuration
	Storage storage.Config

	// Janitor configuration
	Janitor JanitorConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// CacheConfig holds compile cache settings
type CacheConfig struct {
	Dir          string
	Enabled      bool
	WriteThrough bool
	TrackHits    bool
	MaxParallel  int
}

// LockConfig holds artifact locking settings
type LockConfig struct {
	// CrossProcess enables the shared lock on top of the in-process one
	CrossProcess bool
	// Backend is "file" or "redis"
	Backend     string
	RedisURL    string
	RedisPrefix string
	RedisTTL    time.Duration
	Retries     int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// JanitorConfig holds settings of the prune daemon
type JanitorConfig struct {
	MetricsAddr     string
	PruneSchedule   string
	PruneMaxIdle    time.Duration
	ShutdownTimeout time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Cache:         loadCacheConfig(),
		Lock:          loadLockConfig(),
		Storage:       loadStorageConfig(),
		Janitor:       loadJanitorConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadCacheConfig loads cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Dir:          getEnv("PRISM_CACHE_DIR", DefaultCacheDir),
		Enabled:      getEnvBool("PRISM_CACHE_ENABLED", true),
		WriteThrough: getEnvBool("PRISM_WRITE_THROUGH", true),
		TrackHits:    getEnvBool("PRISM_TRACK_HITS", false),
		MaxParallel:  getEnvInt("PRISM_MAX_PARALLEL", DefaultMaxParallel),
	}
}

// loadLockConfig loads lock configuration from environment
func loadLockConfig() LockConfig {
	return LockConfig{
		CrossProcess: getEnvBool("PRISM_CROSS_PROCESS_LOCK", false),
		Backend:      strings.ToLower(getEnv("PRISM_LOCK_BACKEND", DefaultLockBackend)),
		RedisURL:     getEnv("PRISM_REDIS_URL", ""),
		RedisPrefix:  getEnv("PRISM_REDIS_LOCK_PREFIX", DefaultRedisLockPrefix),
		RedisTTL:     getEnvDuration("PRISM_REDIS_LOCK_TTL", DefaultRedisLockTTL),
		Retries:      getEnvInt("PRISM_LOCK_RETRIES", DefaultLockRetries),
		MinBackoff:   getEnvDuration("PRISM_LOCK_MIN_BACKOFF", DefaultLockMinBackoff),
		MaxBackoff:   getEnvDuration("PRISM_LOCK_MAX_BACKOFF", DefaultLockMaxBackoff),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("PRISM_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = strings.ToLower(storageType)
	}
	cfg.Root = getEnv("PRISM_PROJECT_DIR", DefaultProjectDir)
	cfg.CachePrefix = getEnv("PRISM_CACHE_DIR", DefaultCacheDir)
	cfg.Compress = getEnvBool("PRISM_COMPRESS", false)

	// S3 config
	if s3Endpoint := getEnv("PRISM_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("PRISM_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	cfg.S3Bucket = getEnv("PRISM_S3_BUCKET", "")
	cfg.S3Prefix = getEnv("PRISM_S3_PREFIX", "")
	cfg.S3AccessKey = getEnv("PRISM_S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnv("PRISM_S3_SECRET_KEY", "")
	cfg.S3UsePathStyle = getEnvBool("PRISM_S3_USE_PATH_STYLE", false)

	return cfg
}

// loadJanitorConfig loads prune daemon configuration from environment
func loadJanitorConfig() JanitorConfig {
	return JanitorConfig{
		MetricsAddr:     getEnv("PRISM_METRICS_ADDR", DefaultMetricsAddr),
		PruneSchedule:   getEnv("PRISM_PRUNE_SCHEDULE", DefaultPruneSchedule),
		PruneMaxIdle:    getEnvDuration("PRISM_PRUNE_MAX_IDLE", DefaultPruneMaxIdle),
		ShutdownTimeout: getEnvDuration("PRISM_SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("PRISM_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("PRISM_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("PRISM_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("PRISM_OTEL_ENDPOINT", DefaultOTelEndpoint),
		OTelServiceName:    getEnv("PRISM_OTEL_SERVICE_NAME", DefaultOTelServiceName),
		OTelServiceVersion: getEnv("PRISM_OTEL_SERVICE_VERSION", "dev"),
		OTelInsecure:       getEnvBool("PRISM_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("PRISM_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.CompileCache().Validate(); err != nil {
		return err
	}

	// Validate lock config
	if c.Lock.CrossProcess {
		switch c.Lock.Backend {
		case "file":
		case "redis":
			if c.Lock.RedisURL == "" {
				return fmt.Errorf("redis URL is required for the redis lock backend")
			}
		default:
			return fmt.Errorf("invalid lock backend: %s (must be file or redis)", c.Lock.Backend)
		}
	}

	// Validate storage config based on type
	if c.Storage.Root == "" {
		return fmt.Errorf("project directory is required")
	}
	switch c.Storage.Type {
	case "filesystem":
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be filesystem or s3)", c.Storage.Type)
	}
	if c.Storage.CachePrefix != c.Cache.Dir {
		return fmt.Errorf("storage cache prefix %q must match cache dir %q", c.Storage.CachePrefix, c.Cache.Dir)
	}

	if c.Janitor.PruneMaxIdle <= 0 {
		return fmt.Errorf("prune max idle must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// CompileCache returns the orchestrator configuration
func (c *Config) CompileCache() *compilecache.Config {
	return &compilecache.Config{
		CacheDir:         c.Cache.Dir,
		CacheEnabled:     c.Cache.Enabled,
		WriteThrough:     c.Cache.WriteThrough,
		CrossProcessLock: c.Lock.CrossProcess,
		TrackHits:        c.Cache.TrackHits,
		Lock: lock.RetryOptions{
			Retries:    c.Lock.Retries,
			MinBackoff: c.Lock.MinBackoff,
			MaxBackoff: c.Lock.MaxBackoff,
		},
		MaxParallel: c.Cache.MaxParallel,
	}
}

// OTel returns the OpenTelemetry configuration
func (c *Config) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
		SampleRatio:    c.Observability.OTelSampleRatio,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
