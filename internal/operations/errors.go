package operations

import (
	"errors"
)

var (
	// ErrJobNotFound is returned for unknown job ids
	ErrJobNotFound = errors.New("job not found")

	// ErrQueueFull is returned by Enqueue when the buffer is full
	ErrQueueFull = errors.New("job queue is full")

	// ErrQueueStopped is returned by Enqueue after Stop
	ErrQueueStopped = errors.New("job queue is stopped")

	// ErrNotCancellable is returned when cancelling a finished job
	ErrNotCancellable = errors.New("job cannot be cancelled")

	// ErrUnknownKind is returned when no handler is registered for a job kind
	ErrUnknownKind = errors.New("no handler registered for job kind")
)
