package lock

import (
	"context"
	"time"

	"github.com/platinummonkey/prism/pkg/errdefs"
)

// RetryOptions bounds cross-process lock acquisition.
type RetryOptions struct {
	// Retries is the number of attempts after the first one
	Retries int
	// MinBackoff is the wait after the first failed attempt
	MinBackoff time.Duration
	// MaxBackoff caps the wait between attempts
	MaxBackoff time.Duration
}

// DefaultRetryOptions returns the default retry budget.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		Retries:    20,
		MinBackoff: 20 * time.Millisecond,
		MaxBackoff: 500 * time.Millisecond,
	}
}

// Backoff returns the wait before retry number attempt (0 based). The wait
// doubles per attempt, starting at MinBackoff and capped at MaxBackoff.
func (o RetryOptions) Backoff(attempt int) time.Duration {
	d := o.MinBackoff
	for i := 0; i < attempt && d < o.MaxBackoff; i++ {
		d *= 2
	}
	if d > o.MaxBackoff {
		d = o.MaxBackoff
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Locker is a lock shared between processes.
type Locker interface {
	// Acquire blocks until key is locked or the retry budget is exhausted.
	// The returned release func is safe to call more than once.
	Acquire(ctx context.Context, key string, opts RetryOptions) (release func() error, err error)
}

// retry calls try until it reports success, returns an error, or the
// budget in opts is spent.
func retry(ctx context.Context, key string, opts RetryOptions, try func() (bool, error)) error {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	for attempt := 0; ; attempt++ {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if attempt >= opts.Retries {
			return &errdefs.LockTimeoutError{Key: key, Attempts: attempt + 1}
		}

		timer := time.NewTimer(opts.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return &errdefs.LockTimeoutError{Key: key, Attempts: attempt + 1, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}
