package router

import "errors"

var (
	ErrInvalidEventType      = errors.New("event type cannot be sent by clients")
	ErrUnauthorizedEventType = errors.New("only the teacher may send this event")
	ErrRateLimitExceeded     = errors.New("chat rate limit exceeded")
	ErrSenderNotInRoom       = errors.New("sender is not bound to a room")
)
