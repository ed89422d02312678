package supervisor

import "errors"

var (
	// ErrNotConfigured means the service has no local launch command.
	ErrNotConfigured = errors.New("service is not configured for local launch")

	// ErrAlreadyRunning means a start was requested for a live service.
	ErrAlreadyRunning = errors.New("service is already running")

	// ErrPortInUse means something else is listening on the service port.
	ErrPortInUse = errors.New("service port is already in use")

	// ErrStopLocked blocks restart paths after an explicit user stop.
	// The lock file must be removed before the service may run again.
	ErrStopLocked = errors.New("service has an active STOP_LOCK")

	// ErrNoStopLock means a stop-lock removal found nothing to remove.
	ErrNoStopLock = errors.New("no stop lock present")

	// ErrEncoderValidation means the flux local-model paths are incomplete
	// or point at files that do not exist.
	ErrEncoderValidation = errors.New("flux encoder validation failed")
)
