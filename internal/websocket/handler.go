package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// EventSink receives the lifecycle and inbound events of relay connections.
// The hub implements it.
type EventSink interface {
	RegisterConnection(conn *Connection) error
	UnregisterConnection(conn *Connection) error
	SendEvent(conn *Connection, ev types.Event) error
}

// Handler upgrades session channel requests of the form
// /ws/chat/{channel}/?token=... after checking the token and room
// membership.
type Handler struct {
	sink     EventSink
	db       interfaces.DatabaseManager
	opts     Options
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHandler(sink EventSink, db interfaces.DatabaseManager, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sink: sink,
		db:   db,
		opts: opts.withDefaults(),
		upgrader: websocket.Upgrader{
			// Classroom clients connect from arbitrary dev origins.
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.Named("ws"),
	}
}

// HandleWebSocket authenticates, upgrades and starts reading. channelName is
// the room segment of the URL.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request, channelName string) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, ErrMissingToken.Error(), http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user, err := h.db.GetUserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		h.logger.Error("token lookup failed", zap.Error(err))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	room, err := h.db.FindRoomByChannelName(ctx, channelName)
	if err != nil {
		if errors.Is(err, interfaces.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		h.logger.Error("room lookup failed", zap.String("channel", channelName), zap.Error(err))
		http.Error(w, "room lookup failed", http.StatusInternalServerError)
		return
	}

	if !room.HasParticipant(user.Username) {
		http.Error(w, ErrNotParticipant.Error(), http.StatusForbidden)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(ws, h.opts)
	if err := conn.SetCredentials(user.Username, user.UserType, room.ID); err != nil {
		h.logger.Warn("invalid credentials", zap.String("user", user.Username), zap.Error(err))
		_ = conn.Close()
		return
	}

	if err := h.sink.RegisterConnection(conn); err != nil {
		h.logger.Warn("registration failed", zap.String("user", user.Username), zap.Error(err))
		_ = conn.Close()
		return
	}

	go h.readPump(conn)
}

// readPump decodes frames in arrival order and forwards them to the sink.
// Unknown or malformed frames are dropped.
func (h *Handler) readPump(conn *Connection) {
	logger := h.logger.With(zap.String("user", conn.GetUsername()), zap.String("room", conn.GetRoomID()))
	defer func() {
		if err := h.sink.UnregisterConnection(conn); err != nil {
			logger.Warn("unregister failed", zap.Error(err))
		}
		_ = conn.Close()
	}()

	err := conn.ReadLoop(func(data []byte) {
		ev, err := types.DecodeEvent(data)
		if err != nil {
			logger.Debug("dropping inbound frame", zap.Error(err))
			return
		}
		if err := h.sink.SendEvent(conn, ev); err != nil {
			logger.Warn("event not queued", zap.String("type", string(ev.Type)), zap.Error(err))
		}
	})
	if err != nil && !IsExpectedClose(err) {
		logger.Debug("connection ended", zap.Error(err))
	}
}
