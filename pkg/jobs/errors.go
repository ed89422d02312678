package jobs

import "errors"

var (
	// ErrNotFound means no job record exists in memory or in the
	// session store.
	ErrNotFound = errors.New("job not found")

	// ErrNotCancellable means the job already reached a terminal state.
	ErrNotCancellable = errors.New("job is not in a cancellable state")
)
