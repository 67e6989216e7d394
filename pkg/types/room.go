package types

import (
	"strings"
	"time"
)

// Role is a participant's classroom role.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// User is an account known to the backend. Token is only populated in the
// registration response.
type User struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	UserType Role      `json:"user_type"`
	Token    string    `json:"token,omitempty"`
	Created  time.Time `json:"created_at"`
}

// Room is a classroom with its participants.
type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Participants []string  `json:"participant_names"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasParticipant reports whether username is a member of the room.
func (r *Room) HasParticipant(username string) bool {
	for _, p := range r.Participants {
		if p == username {
			return true
		}
	}
	return false
}

// ChannelName is the room name as it appears in the channel URL: every
// character outside [a-zA-Z0-9] becomes '_'.
func ChannelName(roomName string) string {
	var b strings.Builder
	b.Grow(len(roomName))
	for _, r := range roomName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ChatMessage is one entry of a room's chat history.
type ChatMessage struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room,omitempty"`
	SenderName string    `json:"sender_name"`
	UserType   Role      `json:"user_type,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// FromTeacher reports whether the author is a teacher.
func (m ChatMessage) FromTeacher() bool {
	return m.UserType == RoleTeacher
}

// Mine reports whether the message was written by username.
func (m ChatMessage) Mine(username string) bool {
	return m.SenderName == username
}
