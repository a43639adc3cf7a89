package async

import (
	"context"
	"time"

	"github.com/platinummonkey/prism/pkg/observability"
)

// SafeGo runs fn in a goroutine with:
// - a timeout derived from parentCtx (no timeout when timeout <= 0)
// - panic recovery
// - error logging
//
// The returned channel is closed when fn has returned.
//
// Example:
//
//	done := async.SafeGo(ctx, logger, time.Minute, "re-resolve", func(ctx context.Context) error {
//	    return w.resolve(ctx)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ctx, cancel := parentCtx, context.CancelFunc(func() {})
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(parentCtx, timeout)
		}
		defer cancel()

		log := logger.WithField("task", taskName)
		defer observability.RecoverPanic(log, taskName)

		if err := fn(ctx); err != nil {
			log.WithError(err).Error("background task failed")
		}
	}()
	return done
}

// Debouncer coalesces bursts of triggers into one call of fn, run through
// SafeGo once no trigger arrived for the configured delay.
type Debouncer struct {
	ctx    context.Context
	logger *observability.Logger
	delay  time.Duration
	name   string
	fn     func(context.Context) error
	timer  *time.Timer
	events chan struct{}
}

// NewDebouncer creates a debouncer. Call Run to start it.
func NewDebouncer(ctx context.Context, logger *observability.Logger, delay time.Duration, name string, fn func(context.Context) error) *Debouncer {
	return &Debouncer{
		ctx:    ctx,
		logger: logger,
		delay:  delay,
		name:   name,
		fn:     fn,
		events: make(chan struct{}, 1),
	}
}

// Trigger schedules a call. It never blocks.
func (d *Debouncer) Trigger() {
	select {
	case d.events <- struct{}{}:
	default:
	}
}

// Run processes triggers until the context is done. Calls of fn never
// overlap.
func (d *Debouncer) Run() {
	var pending <-chan time.Time
	var running <-chan struct{}
	dirty := false

	for {
		select {
		case <-d.ctx.Done():
			if running != nil {
				<-running
			}
			return
		case <-d.events:
			if d.timer == nil {
				d.timer = time.NewTimer(d.delay)
			} else {
				if !d.timer.Stop() {
					select {
					case <-d.timer.C:
					default:
					}
				}
				d.timer.Reset(d.delay)
			}
			pending = d.timer.C
		case <-pending:
			pending = nil
			if running != nil {
				dirty = true
				continue
			}
			running = SafeGo(d.ctx, d.logger, 0, d.name, d.fn)
		case <-running:
			running = nil
			if dirty {
				dirty = false
				running = SafeGo(d.ctx, d.logger, 0, d.name, d.fn)
			}
		}
	}
}
