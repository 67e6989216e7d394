package interfaces

import (
	"context"

	"liveclass/pkg/types"
)

// EventRouter applies session channel events to a room and fans them out.
// Implementations are driven from a single goroutine.
type EventRouter interface {
	// Join sends the room's full whiteboard state to conn and announces it
	// to the room.
	Join(ctx context.Context, conn Connection) error

	// Leave announces the departure of conn.
	Leave(ctx context.Context, conn Connection)

	// RouteEvent validates ev from sender, applies it to the room state
	// and delivers it to the recipients its type calls for.
	RouteEvent(ctx context.Context, sender Connection, ev types.Event) error
}
