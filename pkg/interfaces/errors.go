package interfaces

import "errors"

// Errors shared by every DatabaseManager implementation.
var (
	ErrRoomNotFound = errors.New("room not found")
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("username already taken")
	ErrUnauthorized = errors.New("unauthorized access")
)
