package apperror

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrCorruptedState   = errors.New("corrupted match state")
	ErrUnknownAction    = errors.New("unknown action")
	ErrPayloadMalformed = errors.New("malformed payload")
)
