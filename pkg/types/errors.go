package types

import "errors"

var (
	ErrUnknownActionType = errors.New("unknown action type")
	ErrUnknownEventType  = errors.New("unknown event type")
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrInvalidAction     = errors.New("invalid whiteboard action")
	ErrInvalidUsername   = errors.New("username must be 1-50 characters, alphanumeric + underscore/hyphen/dot only")
	ErrInvalidRole       = errors.New("invalid role: must be 'teacher' or 'student'")
	ErrInvalidRoomName   = errors.New("room name must be 1-255 characters")
	ErrEmptyMessage      = errors.New("message content required")
	ErrMessageTooLong    = errors.New("message exceeds 5000 characters")
)
