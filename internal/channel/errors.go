package channel

import "errors"

var (
	ErrNotOpen       = errors.New("session channel is not open")
	ErrClosed        = errors.New("session channel is closed")
	ErrInvalidTarget = errors.New("invalid relay address")
)
