package compilecache

import (
	"strings"

	"github.com/platinummonkey/prism/pkg/errdefs"
	"github.com/platinummonkey/prism/pkg/lock"
	"github.com/platinummonkey/prism/pkg/storage"
)

// Config holds orchestrator settings. It is resolved once at construction.
type Config struct {
	// CacheDir is the storage key prefix holding every cache record
	CacheDir string
	// CacheEnabled turns the persistent cache on; when off every resolve compiles
	CacheEnabled bool
	// WriteThrough persists compile results and hit counters
	WriteThrough bool
	// CrossProcessLock additionally locks each artifact through a lock.Locker
	CrossProcessLock bool
	// TrackHits records hit counters on cache hits
	TrackHits bool
	// Lock bounds cross-process lock acquisition
	Lock lock.RetryOptions
	// MaxParallel limits concurrent resolves in ResolveAll
	MaxParallel int
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() *Config {
	return &Config{
		CacheDir:     ".prism",
		CacheEnabled: true,
		WriteThrough: true,
		Lock:         lock.DefaultRetryOptions(),
		MaxParallel:  4,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c == nil {
		return errdefs.Validation("config", "orchestrator config is required")
	}
	if _, err := storage.CleanKey(c.CacheDir); err != nil {
		return errdefs.Validation("cacheDir", "must be a relative path: %q", c.CacheDir)
	}
	if strings.Contains(c.CacheDir, assetSuffix) {
		return errdefs.Validation("cacheDir", "must not contain %q", assetSuffix)
	}
	if c.Lock.Retries < 0 {
		return errdefs.Validation("lock.retries", "must be >= 0, got %d", c.Lock.Retries)
	}
	if c.Lock.MinBackoff < 0 || c.Lock.MaxBackoff < c.Lock.MinBackoff {
		return errdefs.Validation("lock.backoff", "need 0 <= min <= max, got %s..%s", c.Lock.MinBackoff, c.Lock.MaxBackoff)
	}
	if c.MaxParallel < 1 {
		return errdefs.Validation("maxParallel", "must be >= 1, got %d", c.MaxParallel)
	}
	return nil
}
