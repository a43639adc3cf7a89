package compilecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/prism/pkg/errdefs"
	"github.com/platinummonkey/prism/pkg/fingerprint"
	"github.com/platinummonkey/prism/pkg/lock"
	"github.com/platinummonkey/prism/pkg/observability"
	"github.com/platinummonkey/prism/pkg/storage"
)

var tracer = otel.Tracer("prism/compilecache")

// MetaStoreOptions configures a MetaStore
type MetaStoreOptions struct {
	Logger *observability.Logger
	// Fingerprint defaults to fingerprint.Of
	Fingerprint fingerprint.Func
	// Now defaults to time.Now
	Now func() time.Time
	// TrackHits makes revalidated writes record hit counters
	TrackHits bool
}

// MetaStore reads, validates and writes artifact meta records together with
// the content and assets they describe.
type MetaStore struct {
	store       storage.Storage
	layout      Layout
	logger      *observability.Logger
	fingerprint fingerprint.Func
	now         func() time.Time
	trackHits   bool
}

// NewMetaStore creates a MetaStore keeping records below cacheDir in store
func NewMetaStore(store storage.Storage, cacheDir string, opts MetaStoreOptions) (*MetaStore, error) {
	if store == nil {
		return nil, errdefs.Validation("storage", "storage is required")
	}
	layout, err := NewLayout(cacheDir)
	if err != nil {
		return nil, errdefs.Validation("cacheDir", "invalid cache directory %q: %v", cacheDir, err)
	}
	s := &MetaStore{
		store:       store,
		layout:      layout,
		logger:      opts.Logger,
		fingerprint: opts.Fingerprint,
		now:         opts.Now,
		trackHits:   opts.TrackHits,
	}
	if s.logger == nil {
		s.logger = observability.Discard()
	}
	if s.fingerprint == nil {
		s.fingerprint = fingerprint.Of
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Layout returns the key layout of the store
func (s *MetaStore) Layout() Layout {
	return s.layout
}

// ReadMeta returns the meta record of key. A missing or unreadable record
// yields ErrMetaNotFound.
func (s *MetaStore) ReadMeta(ctx context.Context, key ArtifactKey) (*Meta, error) {
	data, err := s.store.Read(ctx, s.layout.MetaKey(key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMetaNotFound, key)
		}
		return nil, err
	}

	var meta Meta
	err = json.Unmarshal(data, &meta)
	if err == nil {
		err = s.checkMeta(key, &meta)
	}
	if err != nil {
		observability.FromContext(ctx, s.logger).WithFields(map[string]interface{}{
			"event":    "meta_corrupt",
			"resource": key.Resource,
			"group":    key.GroupID,
		}).WithError(err).Warn("Ignoring corrupt meta record")
		return nil, fmt.Errorf("%w: %s: %v", ErrMetaNotFound, key, err)
	}
	return &meta, nil
}

func (s *MetaStore) checkMeta(key ArtifactKey, meta *Meta) error {
	if meta.ContentType == "" {
		return errors.New("missing content type")
	}
	if len(meta.Sources) != len(meta.SourcesFingerprint) {
		return fmt.Errorf("%d sources but %d fingerprints", len(meta.Sources), len(meta.SourcesFingerprint))
	}
	if len(meta.Assets) != len(meta.AssetsFingerprint) {
		return fmt.Errorf("%d assets but %d fingerprints", len(meta.Assets), len(meta.AssetsFingerprint))
	}
	dir := s.layout.AssetDir(key)
	for _, ref := range append(append([]string{}, meta.Sources...), meta.Assets...) {
		if _, err := resolveRef(dir, ref); err != nil {
			return err
		}
	}
	return nil
}

// Validate decides whether the cached entry described by meta can be served.
// Checks run in order and stop at the first failure: compiled content exists,
// preconditions hold, sources are declared, every source fingerprint matches,
// every asset fingerprint matches. Only storage failures are returned as
// errors.
func (s *MetaStore) Validate(ctx context.Context, key ArtifactKey, meta *Meta, pre Preconditions) (*Validation, error) {
	ctx, span := tracer.Start(ctx, "MetaStore.Validate",
		trace.WithAttributes(
			attribute.String("artifact.resource", key.Resource),
			attribute.String("artifact.group", key.GroupID),
		),
	)
	defer span.End()

	v, err := s.validate(ctx, key, meta, pre)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}
	span.SetAttributes(attribute.Bool("cache.valid", v.Valid))
	if !v.Valid {
		span.SetAttributes(attribute.String("cache.reason", string(v.Reason)))
	}
	span.SetStatus(codes.Ok, "")
	return v, nil
}

func (s *MetaStore) validate(ctx context.Context, key ArtifactKey, meta *Meta, pre Preconditions) (*Validation, error) {
	if meta == nil {
		return nil, errdefs.Validation("meta", "meta is required")
	}
	if err := pre.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkMeta(key, meta); err != nil {
		return nil, errdefs.Validation("meta", "%v", err)
	}

	contentKey := s.layout.ContentKey(key)
	content, err := s.store.Read(ctx, contentKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return invalid(nil, ReasonContentNotFound, "content", contentKey), nil
		}
		return nil, err
	}

	fp := s.fingerprint(content)
	if !fingerprint.Equal(fp, meta.ContentFingerprint) {
		v := invalid(nil, ReasonContentFingerprintMismatch, "content", contentKey)
		v.Data["fingerprint"] = fp
		return v, nil
	}

	if pre.ETag != "" {
		if fp != pre.ETag {
			v := invalid(content, ReasonPreconditionMismatch, "etag", pre.ETag)
			v.Data["fingerprint"] = fp
			return v, nil
		}
	}
	if !pre.IfModifiedSince.IsZero() {
		modified, err := s.store.ModTime(ctx, contentKey)
		if err != nil {
			return nil, err
		}
		// HTTP dates carry whole seconds
		if modified.Truncate(time.Second).After(pre.IfModifiedSince.Truncate(time.Second)) {
			v := invalid(content, ReasonPreconditionMismatch, "ifModifiedSince", pre.IfModifiedSince)
			v.Data["modifiedAt"] = modified
			return v, nil
		}
	}

	if len(meta.Sources) == 0 {
		return invalid(content, ReasonSourcesEmpty, "", nil), nil
	}

	dir := s.layout.AssetDir(key)
	check := func(refs, fingerprints []string, notFound, mismatch Reason, field string) (*Validation, error) {
		for i, ref := range refs {
			k, err := resolveRef(dir, ref)
			if err != nil {
				return invalid(content, notFound, field, ref), nil
			}
			data, err := s.store.Read(ctx, k)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return invalid(content, notFound, field, k), nil
				}
				return nil, err
			}
			if !fingerprint.Equal(s.fingerprint(data), fingerprints[i]) {
				return invalid(content, mismatch, field, k), nil
			}
		}
		return nil, nil
	}

	if v, err := check(meta.Sources, meta.SourcesFingerprint, ReasonSourceNotFound, ReasonSourceFingerprintMismatch, "source"); v != nil || err != nil {
		return v, err
	}
	if v, err := check(meta.Assets, meta.AssetsFingerprint, ReasonAssetNotFound, ReasonAssetFingerprintMismatch, "asset"); v != nil || err != nil {
		return v, err
	}
	return &Validation{Valid: true, Content: content}, nil
}

func invalid(content []byte, reason Reason, field string, value any) *Validation {
	v := &Validation{Reason: reason, Content: content, Data: map[string]any{}}
	if field != "" {
		v.Data[field] = value
	}
	return v
}

// Write persists an artifact. WriteCreated and WriteUpdated store the
// compiled content and assets, fingerprint every resolvable source and
// commit the meta record last; sources that cannot be read are dropped with
// a warning. WriteUpdated keeps createdAt and hit counters of prev.
// WriteRevalidated only records a hit, and only when hit tracking is on.
func (s *MetaStore) Write(ctx context.Context, key ArtifactKey, mode WriteMode, prev *Meta, result *CompileResult) (*Meta, error) {
	ctx, span := tracer.Start(ctx, "MetaStore.Write",
		trace.WithAttributes(
			attribute.String("artifact.resource", key.Resource),
			attribute.String("artifact.group", key.GroupID),
			attribute.String("cache.write_mode", string(mode)),
		),
	)
	defer span.End()

	var (
		meta *Meta
		err  error
	)
	switch mode {
	case WriteRevalidated:
		meta, err = s.writeRevalidated(ctx, key, prev)
	case WriteCreated, WriteUpdated:
		meta, err = s.writeCompiled(ctx, key, mode, prev, result)
	default:
		err = errdefs.Validation("mode", "unknown write mode %q", mode)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("cache.sources", len(meta.Sources)),
		attribute.Int("cache.assets", len(meta.Assets)),
	)
	span.SetStatus(codes.Ok, "")
	return meta, nil
}

func (s *MetaStore) writeRevalidated(ctx context.Context, key ArtifactKey, prev *Meta) (*Meta, error) {
	if prev == nil {
		return nil, errdefs.Validation("meta", "revalidated write needs the current meta")
	}
	if !s.trackHits {
		return prev, nil
	}
	meta := *prev
	now := s.now().UTC()
	meta.HitCount++
	meta.LastHitAt = &now
	if err := s.writeMeta(ctx, key, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *MetaStore) writeCompiled(ctx context.Context, key ArtifactKey, mode WriteMode, prev *Meta, result *CompileResult) (*Meta, error) {
	if err := result.Validate(); err != nil {
		return nil, err
	}
	logger := observability.FromContext(ctx, s.logger).WithFields(map[string]interface{}{
		"resource": key.Resource,
		"group":    key.GroupID,
	})

	now := s.now().UTC()
	meta := &Meta{
		ContentType:        result.ContentType,
		ContentFingerprint: s.fingerprint(result.Content),
		Sources:            []string{},
		SourcesFingerprint: []string{},
		Assets:             []string{},
		AssetsFingerprint:  []string{},
		CreatedAt:          now,
		LastModifiedAt:     now,
		Extra:              result.Extra,
	}
	if mode == WriteUpdated && prev != nil {
		meta.CreatedAt = prev.CreatedAt
		meta.HitCount = prev.HitCount
		meta.LastHitAt = prev.LastHitAt
	}

	if err := s.store.Write(ctx, s.layout.ContentKey(key), result.Content); err != nil {
		return nil, err
	}

	dir := s.layout.AssetDir(key)
	written := make(map[string]bool, len(result.Assets))
	for _, asset := range result.Assets {
		assetKey, err := s.layout.AssetKey(key, asset.Path)
		if err != nil || written[assetKey] {
			logger.WithFields(map[string]interface{}{
				"event": "asset_dropped",
				"asset": asset.Path,
			}).Warn("Dropping invalid or duplicate asset")
			continue
		}
		if err := s.store.Write(ctx, assetKey, asset.Content); err != nil {
			return nil, err
		}
		written[assetKey] = true
		ref, err := relRef(dir, assetKey)
		if err != nil {
			return nil, err
		}
		meta.Assets = append(meta.Assets, ref)
		meta.AssetsFingerprint = append(meta.AssetsFingerprint, s.fingerprint(asset.Content))
	}

	sources := result.Sources
	if len(sources) == 0 {
		sources = []string{key.Resource}
	}
	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		srcKey, err := storage.CleanKey(src)
		if err == nil && seen[srcKey] {
			continue
		}
		var data []byte
		if err == nil {
			data, err = s.store.Read(ctx, srcKey)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return nil, err
			}
		}
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"event":  "source_dropped",
				"source": src,
			}).Warn("Dropping unresolvable source")
			continue
		}
		seen[srcKey] = true
		ref, err := relRef(dir, srcKey)
		if err != nil {
			return nil, err
		}
		meta.Sources = append(meta.Sources, ref)
		meta.SourcesFingerprint = append(meta.SourcesFingerprint, s.fingerprint(data))
	}

	if err := s.writeMeta(ctx, key, meta); err != nil {
		return nil, err
	}

	if prev != nil {
		for _, ref := range prev.Assets {
			stale, err := resolveRef(dir, ref)
			if err != nil || written[stale] {
				continue
			}
			if err := s.store.Remove(ctx, stale); err != nil {
				logger.WithError(err).WithField("asset", ref).Warn("Failed to remove stale asset")
			}
		}
	}
	return meta, nil
}

func (s *MetaStore) writeMeta(ctx context.Context, key ArtifactKey, meta *Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode meta: %w", err)
	}
	return s.store.Write(ctx, s.layout.MetaKey(key), data)
}

// Remove deletes an artifact. The meta record goes first so a concurrent
// reader sees a miss rather than a partial entry. Lock files in the asset
// directory are left alone.
func (s *MetaStore) Remove(ctx context.Context, key ArtifactKey) error {
	if err := s.store.Remove(ctx, s.layout.MetaKey(key)); err != nil {
		return err
	}
	if err := s.store.Remove(ctx, s.layout.ContentKey(key)); err != nil {
		return err
	}
	keys, err := s.store.List(ctx, s.layout.AssetDir(key))
	if err != nil {
		return err
	}
	for _, k := range keys {
		if strings.HasSuffix(k, lock.LockSuffix) {
			continue
		}
		if err := s.store.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// SourceKeys resolves the sources recorded in meta to storage keys
func (s *MetaStore) SourceKeys(key ArtifactKey, meta *Meta) ([]string, error) {
	dir := s.layout.AssetDir(key)
	keys := make([]string, 0, len(meta.Sources))
	for _, ref := range meta.Sources {
		k, err := resolveRef(dir, ref)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// List returns the keys of every artifact with a meta record
func (s *MetaStore) List(ctx context.Context) ([]ArtifactKey, error) {
	keys, err := s.store.List(ctx, s.layout.CacheDir())
	if err != nil {
		return nil, err
	}
	var out []ArtifactKey
	for _, k := range keys {
		if key, ok := s.layout.ParseMetaKey(k); ok {
			out = append(out, key)
		}
	}
	return out, nil
}
