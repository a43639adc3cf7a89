// Package lock provides the locks that serialize work on one cache artifact.
//
// Registry is an in-process lock keyed by string: callers for the same key
// are granted the lock in arrival order, different keys never contend.
//
// Locker implementations coordinate separate processes sharing one cache:
// FileLocker uses flock(2) on a lock file beside the record, RedisLocker uses
// a SET NX key with a per-holder token. Both retry with exponential backoff
// and give up with *errdefs.LockTimeoutError once the budget is spent.
package lock
