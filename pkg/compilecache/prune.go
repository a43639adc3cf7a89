package compilecache

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/prism/pkg/errdefs"
	"github.com/platinummonkey/prism/pkg/observability"
)

// PruneStats summarizes one prune run
type PruneStats struct {
	Scanned int
	Removed int
	// Skipped counts artifacts whose lock could not be taken
	Skipped int
}

// Prune removes every artifact not used for longer than maxIdle, together
// with artifacts whose meta record is unreadable. Each artifact is removed
// under the same locks Resolve takes.
func (o *Orchestrator) Prune(ctx context.Context, maxIdle time.Duration) (*PruneStats, error) {
	if maxIdle <= 0 {
		return nil, errdefs.Validation("maxIdle", "must be positive, got %s", maxIdle)
	}
	ctx, span := tracer.Start(ctx, "Orchestrator.Prune",
		trace.WithAttributes(attribute.String("prune.max_idle", maxIdle.String())),
	)
	defer span.End()
	logger := observability.FromContext(ctx, o.logger)

	keys, err := o.store.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, err
	}

	cutoff := o.now().Add(-maxIdle)
	stats := &PruneStats{}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Scanned++
		removed, err := o.pruneOne(ctx, key, cutoff)
		if err != nil {
			if errors.Is(err, errdefs.ErrLockTimeout) {
				logger.WithField("artifact", key.String()).Warn("Skipping locked artifact")
				stats.Skipped++
				continue
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "prune failed")
			return stats, err
		}
		if removed {
			stats.Removed++
			logger.WithFields(map[string]interface{}{
				"event":    "artifact_pruned",
				"resource": key.Resource,
				"group":    key.GroupID,
			}).Debug("Pruned idle artifact")
		}
	}

	o.metrics.ObservePruned(stats.Removed)
	span.SetAttributes(
		attribute.Int("prune.scanned", stats.Scanned),
		attribute.Int("prune.removed", stats.Removed),
	)
	span.SetStatus(codes.Ok, "")
	return stats, nil
}

func (o *Orchestrator) pruneOne(ctx context.Context, key ArtifactKey, cutoff time.Time) (bool, error) {
	release, err := o.lock(ctx, key)
	if err != nil {
		return false, err
	}
	defer release()

	meta, err := o.store.ReadMeta(ctx, key)
	switch {
	case errors.Is(err, ErrMetaNotFound):
		// removed meanwhile, or corrupt
		exists, err := o.storage.Exists(ctx, o.store.Layout().MetaKey(key))
		if err != nil || !exists {
			return false, err
		}
	case err != nil:
		return false, err
	case !meta.LastUsed().Before(cutoff):
		return false, nil
	}

	if err := o.store.Remove(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}
