package audio

import "errors"

var (
	ErrMicrophoneUnavailable = errors.New("could not access microphone")
	ErrPlaybackUnavailable   = errors.New("could not open audio output")
	ErrRoleActive            = errors.New("another audio role is active")
	ErrMalformedFrame        = errors.New("malformed audio frame")
	ErrPlayerClosed          = errors.New("player is closed")
)
