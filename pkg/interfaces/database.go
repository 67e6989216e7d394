package interfaces

import (
	"context"

	"liveclass/pkg/types"
)

// BoardStore persists a room's whiteboard action log between relay restarts.
type BoardStore interface {
	// LoadBoard returns the stored log, or an empty log for an unknown room.
	LoadBoard(ctx context.Context, roomID string) ([]types.Action, error)

	// SaveBoard replaces the stored log.
	SaveBoard(ctx context.Context, roomID string, actions []types.Action) error
}

// DatabaseManager handles all persistence for the backend and relay.
type DatabaseManager interface {
	BoardStore

	// CreateUser stores a new account; ID and Token must already be set.
	CreateUser(ctx context.Context, user *types.User) error
	GetUserByToken(ctx context.Context, token string) (*types.User, error)
	GetUserByName(ctx context.Context, username string) (*types.User, error)

	// CreateRoom stores the room and its initial participants.
	CreateRoom(ctx context.Context, room *types.Room) error
	GetRoom(ctx context.Context, roomID string) (*types.Room, error)

	// FindRoomByChannelName resolves the room segment of a channel URL,
	// which is the room name with non-alphanumerics replaced by '_'.
	FindRoomByChannelName(ctx context.Context, channelName string) (*types.Room, error)
	ListRooms(ctx context.Context) ([]*types.Room, error)

	// AddParticipant is idempotent.
	AddParticipant(ctx context.Context, roomID, username string) error

	// StoreMessage persists a chat message; ID and CreatedAt must be set.
	StoreMessage(ctx context.Context, message *types.ChatMessage) error

	// GetRecentMessages returns up to limit most recent messages in
	// chronological order.
	GetRecentMessages(ctx context.Context, roomID string, limit int) ([]*types.ChatMessage, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
