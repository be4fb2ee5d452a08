package types

import "errors"

// Error taxonomy shared across components. Not-found errors surface as 404
// to HTTP callers and as invalidToken on the realtime channel; conflicts
// surface as 400 with no state change.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrTokenNotFound      = errors.New("token not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrTokenConflict      = errors.New("token already exists")
	ErrInvalidSessionName = errors.New("session name must be 1-200 characters")
	ErrInvalidSlotCount   = errors.New("student count must be between 1 and 500")
)
