package lock

import "errors"

// ErrLocked is the cause of the error Acquire returns when another run held
// the lock for the whole wait. Check it with errors.Is.
var ErrLocked = errors.New("benchmark lock is held by another run")
