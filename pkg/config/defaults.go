package config

import "time"

// Defaults shared by the CLI, the janitor and the environment loader
const (
	DefaultProjectDir  = "."
	DefaultCacheDir    = ".prism"
	DefaultMaxParallel = 4

	DefaultLockBackend     = "file"
	DefaultLockRetries     = 20
	DefaultLockMinBackoff  = 20 * time.Millisecond
	DefaultLockMaxBackoff  = 500 * time.Millisecond
	DefaultRedisLockPrefix = "prism:lock:"
	DefaultRedisLockTTL    = 30 * time.Second

	// DefaultResolverCacheSize bounds the runtime to group lookup cache
	DefaultResolverCacheSize = 256

	DefaultMetricsAddr     = ":9090"
	DefaultPruneSchedule   = "@daily"
	DefaultPruneMaxIdle    = 30 * 24 * time.Hour
	DefaultShutdownTimeout = 30 * time.Second

	DefaultOTelEndpoint    = "localhost:4317"
	DefaultOTelServiceName = "prism"
)
