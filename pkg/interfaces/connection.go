package interfaces

import "liveclass/pkg/types"

// Connection is one participant's session channel connection as seen by the relay.
type Connection interface {
	// WriteJSON queues v for delivery. Safe for concurrent use.
	WriteJSON(v interface{}) error

	Close() error

	GetUsername() string
	GetRole() types.Role
	GetRoomID() string

	// IsAuthenticated is true once SetCredentials has bound the connection
	// to a user and room.
	IsAuthenticated() bool
	SetCredentials(username string, role types.Role, roomID string) error
}
