// Package router holds the relay's authoritative room state and decides who
// receives each event.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"liveclass/internal/websocket"
	"liveclass/internal/whiteboard"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Options bounds per-room state.
type Options struct {
	MaxActions        int
	ChatRatePerMinute int
}

func DefaultOptions() Options {
	return Options{MaxActions: 500, ChatRatePerMinute: 100}
}

// Router implements interfaces.EventRouter. It must be driven from a single
// goroutine (the hub); rooms is not locked.
type Router struct {
	registry    *websocket.Registry
	dbManager   interfaces.DatabaseManager
	boards      interfaces.BoardStore
	rooms       map[string]*whiteboard.Log
	opts        Options
	rateLimiter *RateLimiter
	logger      *zap.Logger
}

// NewRouter wires a router. dbManager stores chat and boards persists the
// whiteboard; either may be nil, in which case that state lives only in
// memory.
func NewRouter(registry *websocket.Registry, dbManager interfaces.DatabaseManager, boards interfaces.BoardStore, opts Options, logger *zap.Logger) *Router {
	d := DefaultOptions()
	if opts.MaxActions <= 0 {
		opts.MaxActions = d.MaxActions
	}
	if opts.ChatRatePerMinute <= 0 {
		opts.ChatRatePerMinute = d.ChatRatePerMinute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry:    registry,
		dbManager:   dbManager,
		boards:      boards,
		rooms:       make(map[string]*whiteboard.Log),
		opts:        opts,
		rateLimiter: NewRateLimiter(opts.ChatRatePerMinute),
		logger:      logger.Named("router"),
	}
}

// Join sends the room's whiteboard to conn, then announces conn to the whole
// room, conn included.
func (r *Router) Join(ctx context.Context, conn interfaces.Connection) error {
	roomID := conn.GetRoomID()
	if roomID == "" {
		return ErrSenderNotInRoom
	}
	board := r.board(ctx, roomID)
	if err := conn.WriteJSON(types.StateEvent(board.Snapshot())); err != nil {
		return fmt.Errorf("failed to send whiteboard state: %w", err)
	}
	r.broadcast(roomID, types.Event{Type: types.EventUserJoin, Username: conn.GetUsername()})
	return nil
}

// Leave announces the departure and unloads the room once it is empty.
func (r *Router) Leave(ctx context.Context, conn interfaces.Connection) {
	roomID := conn.GetRoomID()
	r.broadcast(roomID, types.Event{Type: types.EventUserLeave, Username: conn.GetUsername()})
	if len(r.registry.GetRoomConnections(roomID)) == 0 {
		delete(r.rooms, roomID)
	}
}

// RouteEvent applies ev to the sender's room and fans it out. Events that
// change nothing (undo on an empty board, a move of a stale index) are not
// broadcast.
func (r *Router) RouteEvent(ctx context.Context, sender interfaces.Connection, ev types.Event) error {
	roomID := sender.GetRoomID()
	if roomID == "" {
		return ErrSenderNotInRoom
	}
	if err := r.ValidateEvent(ev, sender.GetRole()); err != nil {
		return err
	}

	switch ev.Type {
	case types.EventChat:
		return r.routeChat(ctx, sender, ev)

	case types.EventDraw, types.EventErase, types.EventLine, types.EventText:
		board := r.board(ctx, roomID)
		dropped := board.Append(ev.Action)
		r.persist(ctx, roomID, board)
		if dropped > 0 {
			// Trimming shifts every index, so peers resync to the whole log.
			r.broadcast(roomID, types.StateEvent(board.Snapshot()))
			return nil
		}
		r.broadcast(roomID, types.ActionEvent(ev.Action))

	case types.EventClear:
		board := r.board(ctx, roomID)
		board.Clear()
		r.persist(ctx, roomID, board)
		r.broadcast(roomID, types.Event{Type: types.EventClear})

	case types.EventUndo:
		board := r.board(ctx, roomID)
		if _, ok := board.Pop(); !ok {
			return nil
		}
		r.persist(ctx, roomID, board)
		r.broadcast(roomID, types.Event{Type: types.EventUndo})

	case types.EventMove:
		board := r.board(ctx, roomID)
		if !board.Translate(ev.Index, ev.DX, ev.DY) {
			return nil
		}
		r.persist(ctx, roomID, board)
		r.broadcast(roomID, types.MoveEvent(ev.Index, ev.DX, ev.DY))

	case types.EventAudioStart:
		r.broadcast(roomID, types.Event{Type: types.EventAudioStart, Username: sender.GetUsername()})

	case types.EventAudioStop:
		r.broadcast(roomID, types.Event{Type: types.EventAudioStop})

	case types.EventAudioData:
		// Broadcasters never hear themselves.
		r.deliver(r.registry.GetRoomStudents(roomID), types.AudioDataEvent(ev.Data))
	}
	return nil
}

// ValidateEvent checks that a client may send ev at all and that role
// permits it.
func (r *Router) ValidateEvent(ev types.Event, role types.Role) error {
	switch ev.Type {
	case types.EventChat:
		_, err := types.ValidateChatContent(ev.Message)
		return err
	case types.EventDraw, types.EventErase, types.EventLine, types.EventText:
		if role != types.RoleTeacher {
			return ErrUnauthorizedEventType
		}
		return types.ValidateAction(ev.Action)
	case types.EventClear, types.EventUndo, types.EventMove,
		types.EventAudioStart, types.EventAudioStop, types.EventAudioData:
		if role != types.RoleTeacher {
			return ErrUnauthorizedEventType
		}
		return nil
	default:
		return ErrInvalidEventType
	}
}

// routeChat persists and then rebroadcasts, attributing the message to the
// sender's account.
func (r *Router) routeChat(ctx context.Context, sender interfaces.Connection, ev types.Event) error {
	username := sender.GetUsername()
	if !r.rateLimiter.Allow(username) {
		return ErrRateLimitExceeded
	}

	if r.dbManager != nil {
		msg := &types.ChatMessage{
			ID:         uuid.New().String(),
			RoomID:     sender.GetRoomID(),
			SenderName: username,
			UserType:   sender.GetRole(),
			Content:    ev.Message,
			CreatedAt:  time.Now().UTC(),
		}
		if err := r.dbManager.StoreMessage(ctx, msg); err != nil {
			return fmt.Errorf("failed to persist message: %w", err)
		}
	}

	r.broadcast(sender.GetRoomID(), types.Event{
		Type:     types.EventMessage,
		Message:  ev.Message,
		Username: username,
		UserType: sender.GetRole(),
	})
	return nil
}

// board returns the in-memory log of a room, loading it from the board
// store on first use.
func (r *Router) board(ctx context.Context, roomID string) *whiteboard.Log {
	if log, ok := r.rooms[roomID]; ok {
		return log
	}
	log := whiteboard.NewLog(r.opts.MaxActions)
	if r.boards != nil {
		actions, err := r.boards.LoadBoard(ctx, roomID)
		if err != nil {
			r.logger.Warn("failed to load board, starting empty", zap.String("room", roomID), zap.Error(err))
		} else {
			log.Reset(actions)
		}
	}
	r.rooms[roomID] = log
	return log
}

// persist writes the board through. The in-memory log stays authoritative
// when the store fails.
func (r *Router) persist(ctx context.Context, roomID string, board *whiteboard.Log) {
	if r.boards == nil {
		return
	}
	if err := r.boards.SaveBoard(ctx, roomID, board.Snapshot()); err != nil {
		r.logger.Warn("failed to save board", zap.String("room", roomID), zap.Error(err))
	}
}

func (r *Router) broadcast(roomID string, ev types.Event) {
	r.deliver(r.registry.GetRoomConnections(roomID), ev)
}

// deliver keeps going past individual failures; a dead recipient is
// cleaned up by its own read loop.
func (r *Router) deliver(recipients []*websocket.Connection, ev types.Event) {
	for _, conn := range recipients {
		if err := conn.WriteJSON(ev); err != nil {
			r.logger.Debug("delivery failed",
				zap.String("user", conn.GetUsername()),
				zap.String("type", string(ev.Type)),
				zap.Error(err))
		}
	}
}

// Snapshot returns a copy of a room's current board, loading it if needed.
// Like every Router method it belongs to the hub goroutine.
func (r *Router) Snapshot(ctx context.Context, roomID string) []types.Action {
	return r.board(ctx, roomID).Snapshot()
}

// Cleanup drops idle rate limiter entries. The hub calls it periodically.
func (r *Router) Cleanup() {
	r.rateLimiter.Cleanup()
}
