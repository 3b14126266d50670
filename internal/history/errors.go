package history

import "errors"

// Domain-specific errors for the history store.
var (
	// ErrStoreStopped is returned when a request reaches a Store whose
	// owner goroutine has exited.
	ErrStoreStopped = errors.New("history: store stopped")

	// ErrStoreRunning is returned when Run is called on a Store that is
	// already running.
	ErrStoreRunning = errors.New("history: store already running")
)
