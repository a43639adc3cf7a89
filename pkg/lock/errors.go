package lock

import "errors"

// ErrNotHeld is returned by a release when the lock was lost before it was
// released (for example an expired Redis key taken over by another holder).
var ErrNotHeld = errors.New("lock: not held")
