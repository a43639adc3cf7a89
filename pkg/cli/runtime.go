package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/platinummonkey/prism/pkg/compilecache"
	"github.com/platinummonkey/prism/pkg/config"
	"github.com/platinummonkey/prism/pkg/lock"
	"github.com/platinummonkey/prism/pkg/observability"
	"github.com/platinummonkey/prism/pkg/storage"
)

// Runtime wires storage, locking and the orchestrator from a Config
type Runtime struct {
	Config       *config.Config
	Logger       *observability.Logger
	Storage      storage.Storage
	Orchestrator *compilecache.Orchestrator

	root    string
	redis   *lock.RedisLocker
	closers []func() error
}

// NewRuntime builds the components described by cfg. metrics may be nil.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*Runtime, error) {
	root, err := filepath.Abs(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}
	cfg.Storage.Root = root

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if metrics != nil {
		store = storage.WithRecorder(store, cfg.Storage.Type, metrics)
	}

	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Storage: store,
		root:    root,
	}

	opts := compilecache.Options{
		Storage: store,
		Logger:  logger,
		Metrics: metrics,
	}
	if cfg.Lock.CrossProcess {
		switch cfg.Lock.Backend {
		case "redis":
			locker, err := lock.NewRedisLockerFromURL(ctx, cfg.Lock.RedisURL, cfg.Lock.RedisPrefix, cfg.Lock.RedisTTL)
			if err != nil {
				return nil, fmt.Errorf("failed to connect lock backend: %w", err)
			}
			rt.redis = locker
			rt.closers = append(rt.closers, locker.Close)
			opts.Locker = locker
		default:
			opts.Locker = lock.NewFileLocker(root)
		}
	}

	orchestrator, err := compilecache.NewOrchestrator(cfg.CompileCache(), opts)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Orchestrator = orchestrator
	return rt, nil
}

// Root returns the absolute project directory
func (r *Runtime) Root() string {
	return r.root
}

// Path returns the filesystem path of a project key
func (r *Runtime) Path(key string) string {
	return filepath.Join(r.root, filepath.FromSlash(key))
}

// RegisterHealthChecks adds readiness checks for storage and, when used,
// the Redis lock backend
func (r *Runtime) RegisterHealthChecks(h *observability.HealthChecker) {
	h.Register("storage", func(ctx context.Context) error {
		_, err := r.Storage.Exists(ctx, r.Config.Cache.Dir+"/.health")
		return err
	}, false)
	if r.redis != nil {
		h.Register("redis", r.redis.Ping, false)
	}
}

// Close releases the lock backend
func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// loadRuntime loads the environment configuration, applies the project
// directory override and builds a Runtime logging to stderr
func loadRuntime(ctx context.Context, projectDir string) (*Runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if projectDir != "" {
		cfg.Storage.Root = projectDir
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, stderr)
	return NewRuntime(ctx, cfg, logger, nil)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
