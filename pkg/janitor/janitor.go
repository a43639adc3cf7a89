// Package janitor runs cache pruning on a cron schedule.
package janitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/prism/pkg/compilecache"
	"github.com/platinummonkey/prism/pkg/observability"
)

// Pruner removes idle artifacts
type Pruner interface {
	Prune(ctx context.Context, maxIdle time.Duration) (*compilecache.PruneStats, error)
}

// Janitor prunes idle artifacts on a schedule. Runs never overlap.
type Janitor struct {
	pruner  Pruner
	logger  *observability.Logger
	maxIdle time.Duration
	cron    *cron.Cron

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a janitor removing artifacts idle for longer than maxIdle
func New(pruner Pruner, logger *observability.Logger, maxIdle time.Duration) *Janitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Janitor{
		pruner:  pruner,
		logger:  logger.WithField("component", "janitor"),
		maxIdle: maxIdle,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Schedule adds a prune run on the cron spec. Descriptors such as @daily and
// @every 1h are accepted.
func (j *Janitor) Schedule(spec string) error {
	_, err := j.cron.AddFunc(spec, func() {
		if _, err := j.RunOnce(j.ctx); err != nil {
			j.logger.WithError(err).Error("Scheduled prune failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", spec, err)
	}
	return nil
}

// RunOnce prunes immediately. It returns nil stats when a run is already in
// progress.
func (j *Janitor) RunOnce(ctx context.Context) (*compilecache.PruneStats, error) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		j.logger.Debug("Prune already running, skipping")
		return nil, nil
	}
	j.running = true
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	start := time.Now()
	stats, err := j.pruner.Prune(ctx, j.maxIdle)
	if err != nil {
		return nil, err
	}
	j.logger.WithFields(map[string]interface{}{
		"scanned":     stats.Scanned,
		"removed":     stats.Removed,
		"skipped":     stats.Skipped,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Prune completed")
	return stats, nil
}

// Start starts the scheduler in the background
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop cancels a running prune and waits for it to return
func (j *Janitor) Stop(ctx context.Context) error {
	j.cancel()
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
