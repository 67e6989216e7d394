package session

import "errors"

var (
	ErrNotTeacher      = errors.New("only the teacher can do that")
	ErrNoRoom          = errors.New("no room selected")
	ErrInvalidRoom     = errors.New("room must have an id and a name")
	ErrNotRunning      = errors.New("session controller is not running")
	ErrAlreadyRunning  = errors.New("session controller is already running")
	ErrStopped         = errors.New("session controller was stopped and cannot restart")
	ErrNothingToMove   = errors.New("no movable action at that index")
	ErrNoGesture       = errors.New("no gesture in progress")
	ErrUnsupportedTool = errors.New("tool does not draw with the pointer")
	ErrInvalidIdentity = errors.New("session needs a username and a valid role")
)
