package compilecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/prism/pkg/errdefs"
	"github.com/platinummonkey/prism/pkg/fingerprint"
	"github.com/platinummonkey/prism/pkg/lock"
	"github.com/platinummonkey/prism/pkg/observability"
	"github.com/platinummonkey/prism/pkg/storage"
)

// Options carries the collaborators of an Orchestrator
type Options struct {
	// Storage holds both the project sources and the cache directory
	Storage storage.Storage
	// Locker is required when Config.CrossProcessLock is set
	Locker      lock.Locker
	Logger      *observability.Logger
	Metrics     *observability.Metrics
	Fingerprint fingerprint.Func
	Now         func() time.Time
}

// ResolveOptions are per call settings
type ResolveOptions struct {
	Preconditions Preconditions
}

// Orchestrator resolves artifacts, compiling only when the cached entry is
// missing or stale. Concurrent resolves of one artifact are serialized.
type Orchestrator struct {
	config      Config
	storage     storage.Storage
	store       *MetaStore
	registry    *lock.Registry
	locker      lock.Locker
	logger      *observability.Logger
	metrics     *observability.Metrics
	fingerprint fingerprint.Func
	now         func() time.Time
}

// NewOrchestrator creates an orchestrator. A nil config uses DefaultConfig.
func NewOrchestrator(config *Config, opts Options) (*Orchestrator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.CrossProcessLock && opts.Locker == nil {
		return nil, errdefs.Validation("locker", "cross-process locking needs a locker")
	}
	if opts.Logger == nil {
		opts.Logger = observability.Discard()
	}
	if opts.Fingerprint == nil {
		opts.Fingerprint = fingerprint.Of
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	store, err := NewMetaStore(opts.Storage, config.CacheDir, MetaStoreOptions{
		Logger:      opts.Logger,
		Fingerprint: opts.Fingerprint,
		Now:         opts.Now,
		TrackHits:   config.TrackHits,
	})
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		config:      *config,
		storage:     opts.Storage,
		store:       store,
		registry:    lock.NewRegistry(),
		locker:      opts.Locker,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		fingerprint: opts.Fingerprint,
		now:         opts.Now,
	}, nil
}

// Store returns the meta store backing the orchestrator
func (o *Orchestrator) Store() *MetaStore {
	return o.store
}

// Resolve returns the compiled output of key, serving it from cache when the
// cached entry is still valid.
//
// When compiler fails with *errdefs.ParseError, Resolve returns a Result with
// StatusError together with that error, and leaves the cache untouched.
func (o *Orchestrator) Resolve(ctx context.Context, key ArtifactKey, compiler Compiler, opts ResolveOptions) (*Result, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if compiler == nil {
		return nil, errdefs.Validation("compiler", "compiler is required")
	}
	if err := opts.Preconditions.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	resolveID := uuid.NewString()
	ctx = observability.WithResolveID(ctx, resolveID)
	ctx, span := tracer.Start(ctx, "Orchestrator.Resolve",
		trace.WithAttributes(
			attribute.String("artifact.resource", key.Resource),
			attribute.String("artifact.group", key.GroupID),
			attribute.String("resolve.id", resolveID),
		),
	)
	defer span.End()

	logger := observability.WithTraceContext(ctx, o.logger).WithFields(map[string]interface{}{
		"resource":   key.Resource,
		"group":      key.GroupID,
		"resolve_id": resolveID,
	})

	result, err := o.resolve(ctx, logger, key, compiler, opts)
	if result != nil {
		result.Timing.Total = time.Since(start)
		span.SetAttributes(attribute.String("resolve.status", string(result.Status)))
		o.metrics.ObserveResolve(string(result.Status))
	}
	if err != nil {
		if result == nil {
			o.metrics.ObserveResolve(string(StatusError))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		logger.WithError(err).Error("Failed to resolve artifact")
		return result, err
	}

	logger.WithFields(map[string]interface{}{
		"status":      string(result.Status),
		"duration_ms": result.Timing.Total.Milliseconds(),
	}).Debug("Resolved artifact")
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (o *Orchestrator) resolve(ctx context.Context, logger *observability.Logger, key ArtifactKey, compiler Compiler, opts ResolveOptions) (*Result, error) {
	lockStart := time.Now()
	release, err := o.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()
	lockWait := time.Since(lockStart)

	if !o.config.CacheEnabled {
		result, err := o.compile(ctx, logger, key, compiler)
		if result != nil {
			result.Timing.Lock = lockWait
			if err == nil {
				result.Status = StatusCreated
			}
		}
		return result, err
	}

	status := StatusCreated
	meta, err := o.store.ReadMeta(ctx, key)
	switch {
	case errors.Is(err, ErrMetaNotFound):
		meta = nil
	case err != nil:
		return nil, err
	default:
		v, err := o.store.Validate(ctx, key, meta, opts.Preconditions)
		if err != nil {
			return nil, err
		}
		if v.Valid {
			return o.serveCached(ctx, key, meta, v, lockWait)
		}
		o.invalidated(logger, v)
		status = StatusUpdated
	}

	result, err := o.compile(ctx, logger, key, compiler)
	if err != nil {
		if result != nil {
			result.Timing.Lock = lockWait
		}
		return result, err
	}
	result.Status = status
	result.Timing.Lock = lockWait

	if o.config.WriteThrough {
		mode := WriteCreated
		if status == StatusUpdated {
			mode = WriteUpdated
		}
		written, err := o.store.Write(ctx, key, mode, meta, result.compiled)
		if err != nil {
			return nil, err
		}
		result.Meta = written
	}
	return result, nil
}

func (o *Orchestrator) serveCached(ctx context.Context, key ArtifactKey, meta *Meta, v *Validation, lockWait time.Duration) (*Result, error) {
	if o.config.WriteThrough {
		updated, err := o.store.Write(ctx, key, WriteRevalidated, meta, nil)
		if err != nil {
			return nil, err
		}
		meta = updated
	}
	return &Result{
		Status:      StatusCached,
		Content:     v.Content,
		ContentType: meta.ContentType,
		Fingerprint: o.fingerprint(v.Content),
		Extra:       meta.Extra,
		Timing:      Timing{Lock: lockWait},
		Meta:        meta,
	}, nil
}

func (o *Orchestrator) invalidated(logger *observability.Logger, v *Validation) {
	o.metrics.ObserveInvalidation(string(v.Reason))
	entry := logger.WithFields(map[string]interface{}{
		"event":  "cache_invalidated",
		"reason": string(v.Reason),
	})
	if len(v.Data) > 0 {
		entry = entry.WithFields(v.Data)
	}
	switch v.Reason {
	case ReasonSourceNotFound, ReasonAssetNotFound, ReasonContentNotFound:
		entry.Warn("Cached artifact references missing files")
	case ReasonContentFingerprintMismatch:
		entry.Warn("Cached content was modified outside the cache")
	default:
		entry.Info("Cached artifact is stale")
	}
}

// lock takes the in-process lock and then, when configured, the
// cross-process lock of key. The returned func releases both in reverse
// order.
func (o *Orchestrator) lock(ctx context.Context, key ArtifactKey) (func(), error) {
	lockKey := o.store.Layout().MetaKey(key)

	start := time.Now()
	releaseLocal, err := o.registry.Acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	o.metrics.ObserveLockWait("local", time.Since(start))
	if !o.config.CrossProcessLock {
		return releaseLocal, nil
	}

	start = time.Now()
	releaseShared, err := o.locker.Acquire(ctx, lockKey, o.config.Lock)
	if err != nil {
		releaseLocal()
		if errors.Is(err, errdefs.ErrLockTimeout) {
			o.metrics.ObserveLockTimeout("cross_process")
		}
		return nil, err
	}
	o.metrics.ObserveLockWait("cross_process", time.Since(start))

	return func() {
		if err := releaseShared(); err != nil {
			observability.FromContext(ctx, o.logger).WithError(err).WithField("lock", lockKey).Warn("Failed to release cross-process lock")
		}
		releaseLocal()
	}, nil
}

// compile runs the compiler and validates its output. Compiler panics are
// converted into errors.
func (o *Orchestrator) compile(ctx context.Context, logger *observability.Logger, key ArtifactKey, compiler Compiler) (result *Result, err error) {
	var source []byte
	if compiler.NeedsSource() {
		source, err = o.storage.Read(ctx, key.Resource)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, key.Resource)
			}
			return nil, err
		}
	}

	ctx, span := tracer.Start(ctx, "Orchestrator.Compile",
		trace.WithAttributes(attribute.Bool("compile.needs_source", compiler.NeedsSource())),
	)
	defer span.End()

	start := time.Now()
	out, err := func() (out *CompileResult, err error) {
		defer func() {
			if perr := observability.PanicError(recover()); perr != nil {
				err = perr
			}
		}()
		return compiler.Compile(observability.WithLogger(ctx, logger), source)
	}()
	elapsed := time.Since(start)

	if err == nil {
		err = out.Validate()
	}
	if err == nil {
		out.Extra, err = normalizeExtra(out.Extra)
	}
	if err != nil {
		o.metrics.ObserveCompile("error", elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "compile failed")

		var parseErr *errdefs.ParseError
		if errors.As(err, &parseErr) {
			logger.WithFields(map[string]interface{}{
				"event":  "compile_error",
				"line":   parseErr.Line,
				"column": parseErr.Column,
			}).WithError(parseErr).Warn("Compile rejected source")
			return &Result{
				Status: StatusError,
				Timing: Timing{Compile: elapsed},
				Err:    parseErr,
			}, err
		}
		return nil, fmt.Errorf("compile %s: %w", key, err)
	}

	o.metrics.ObserveCompile("success", elapsed)
	span.SetAttributes(attribute.Int("compile.content_size", len(out.Content)))
	span.SetStatus(codes.Ok, "")
	return &Result{
		Content:     out.Content,
		ContentType: out.ContentType,
		Fingerprint: o.fingerprint(out.Content),
		Extra:       out.Extra,
		Timing:      Timing{Compile: elapsed},
		compiled:    out,
	}, nil
}

// ResolveAll resolves resource for every group concurrently, at most
// Config.MaxParallel at a time. Results are returned in group order. The
// first failure cancels the remaining resolves.
func (o *Orchestrator) ResolveAll(ctx context.Context, resource string, groups []string, compilers CompilerFactory, opts ResolveOptions) ([]*Result, error) {
	if compilers == nil {
		return nil, errdefs.Validation("compilers", "compiler factory is required")
	}
	results := make([]*Result, len(groups))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.MaxParallel)
	for i, group := range groups {
		g.Go(func() error {
			compiler, err := compilers(group)
			if err != nil {
				return fmt.Errorf("compiler for group %s: %w", group, err)
			}
			result, err := o.Resolve(ctx, ArtifactKey{Resource: resource, GroupID: group}, compiler, opts)
			results[i] = result
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
