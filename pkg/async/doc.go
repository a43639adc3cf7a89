// Package async provides panic-safe background execution.
//
// SafeGo runs a task in a goroutine with a timeout, recovers panics and
// logs errors through the structured logger:
//
//	async.SafeGo(ctx, logger, time.Minute, "re-resolve", func(ctx context.Context) error {
//		return resolve(ctx)
//	})
//
// Debouncer coalesces bursts of events (for example file system
// notifications) into one SafeGo call.
package async
