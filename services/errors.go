package services

import "errors"

// Shared errors mapped to HTTP status codes in one place by the
// handler layer.
var (
	ErrNotFound = errors.New("requested resource not found")

	ErrInvalidStatus      = errors.New("unknown status value")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrPreconditionFailed = errors.New("transition precondition failed")

	ErrQueueUnknown       = errors.New("unknown queue name")
	ErrItemNotRequeueable = errors.New("only failed items can be re-queued")

	ErrSignupFormNotFound = errors.New("signup form not found for game")

	ErrVoiceRequestTimeout = errors.New("voice channel request timed out")
	ErrVoiceRequestFailed  = errors.New("voice channel request failed")
)
