package types

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	colorRegex    = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
)

// Limits applied to inbound whiteboard actions and chat.
const (
	MaxChatLength   = 5000
	MaxStrokePoints = 10000
	MaxStrokeWidth  = 200
	MaxFontSize     = 400
	MaxTextLength   = 1000
)

// IsValidUsername checks the account name format.
func IsValidUsername(name string) bool {
	if len(name) < 1 || len(name) > 50 {
		return false
	}
	return usernameRegex.MatchString(name)
}

// ValidateRoomName checks a room's display name.
func ValidateRoomName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < 1 || n > 255 {
		return ErrInvalidRoomName
	}
	return nil
}

// ValidateChatContent rejects blank and oversized chat text and returns the
// text trimmed of surrounding whitespace.
func ValidateChatContent(text string) (string, error) {
	if utf8.RuneCountInString(text) > MaxChatLength {
		return "", ErrMessageTooLong
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	return trimmed, nil
}

// ValidateAction checks an action received from a peer before it enters an
// authoritative log.
func ValidateAction(a Action) error {
	switch v := a.(type) {
	case DrawAction:
		if !colorRegex.MatchString(v.Color) {
			return fmt.Errorf("%w: color %q", ErrInvalidAction, v.Color)
		}
		return validateStroke(v.Points, v.Width)
	case EraseAction:
		return validateStroke(v.Points, v.Width)
	case LineAction:
		if !finite(v.X1, v.Y1, v.X2, v.Y2) {
			return fmt.Errorf("%w: non-finite line endpoint", ErrInvalidAction)
		}
		if !colorRegex.MatchString(v.Color) {
			return fmt.Errorf("%w: color %q", ErrInvalidAction, v.Color)
		}
		return validateWidth(v.Width)
	case TextAction:
		if !finite(v.X, v.Y) {
			return fmt.Errorf("%w: non-finite text anchor", ErrInvalidAction)
		}
		if strings.TrimSpace(v.Content) == "" || utf8.RuneCountInString(v.Content) > MaxTextLength {
			return fmt.Errorf("%w: text content length", ErrInvalidAction)
		}
		if v.FontSize <= 0 || v.FontSize > MaxFontSize {
			return fmt.Errorf("%w: font size %v", ErrInvalidAction, v.FontSize)
		}
		if !colorRegex.MatchString(v.Color) {
			return fmt.Errorf("%w: color %q", ErrInvalidAction, v.Color)
		}
		return nil
	case ClearAction:
		return nil
	case nil:
		return fmt.Errorf("%w: nil action", ErrInvalidAction)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownActionType, a)
	}
}

func validateStroke(points []Point, width float64) error {
	if len(points) == 0 || len(points) > MaxStrokePoints {
		return fmt.Errorf("%w: stroke has %d points", ErrInvalidAction, len(points))
	}
	for _, p := range points {
		if !finite(p[0], p[1]) {
			return fmt.Errorf("%w: non-finite stroke point", ErrInvalidAction)
		}
	}
	return validateWidth(width)
}

func validateWidth(w float64) error {
	if w <= 0 || w > MaxStrokeWidth || math.IsNaN(w) {
		return fmt.Errorf("%w: width %v", ErrInvalidAction, w)
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
