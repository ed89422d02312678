package session

import "errors"

var (
	// ErrSessionNotFound is returned when no session directory matches an id
	ErrSessionNotFound = errors.New("session not found")

	// ErrImageNotFound is returned when a session exists but the image does not
	ErrImageNotFound = errors.New("image not found")

	// ErrInvalidSessionID is returned for ids that do not match the ses-HHMMSS form
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrInvalidFilename is returned for image names with traversal or non-png suffix
	ErrInvalidFilename = errors.New("invalid image filename")

	// ErrSessionClosed is returned when writing to a session after finalize
	ErrSessionClosed = errors.New("session already finalized")
)
