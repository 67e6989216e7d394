package hub

import "errors"

var (
	ErrHubAlreadyRunning     = errors.New("hub is already running")
	ErrHubNotRunning         = errors.New("hub is not running")
	ErrHubStopped            = errors.New("hub was stopped and cannot restart")
	ErrSenderNotConnected    = errors.New("sender not connected")
	ErrEventChannelFull      = errors.New("event channel is full")
	ErrRegisterChannelFull   = errors.New("register channel is full")
	ErrUnregisterChannelFull = errors.New("unregister channel is full")
)
