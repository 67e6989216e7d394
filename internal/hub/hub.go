// Package hub serializes all relay activity onto one goroutine so that room
// state is mutated, and events are fanned out, in a single total order.
package hub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"liveclass/internal/websocket"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// cleanupInterval paces maintenance of routers that implement Cleanup.
const cleanupInterval = time.Minute

// Hub feeds connection lifecycle and inbound events to the router from a
// single goroutine. The router therefore needs no locking of room state.
type Hub struct {
	eventChannel      chan *EventContext
	registerChannel   chan *registration
	unregisterChannel chan *websocket.Connection
	shutdownChannel   chan struct{}
	doneChannel       chan struct{}

	registry *websocket.Registry
	router   interfaces.EventRouter
	logger   *zap.Logger

	running bool
	mu      sync.RWMutex
}

// EventContext is an inbound event together with the connection it came on.
type EventContext struct {
	Event     types.Event
	Sender    *websocket.Connection
	RoomID    string
	Timestamp time.Time
}

type registration struct {
	conn   *websocket.Connection
	result chan error
}

func NewHub(registry *websocket.Registry, router interfaces.EventRouter, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		eventChannel:      make(chan *EventContext, 1000),
		registerChannel:   make(chan *registration, 100),
		unregisterChannel: make(chan *websocket.Connection, 100),
		shutdownChannel:   make(chan struct{}),
		doneChannel:       make(chan struct{}),
		registry:          registry,
		router:            router,
		logger:            logger.Named("hub"),
	}
}

func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrHubAlreadyRunning
	}
	select {
	case <-h.shutdownChannel:
		return ErrHubStopped
	default:
	}
	h.running = true

	h.logger.Info("starting event hub")
	go h.run(ctx)
	return nil
}

// Stop ends the processing loop and waits for it to exit. A stopped hub
// cannot be restarted.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	<-h.doneChannel
	return nil
}

func (h *Hub) isRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// SendEvent queues an inbound event from conn. It never blocks; a full
// queue drops the event.
func (h *Hub) SendEvent(conn *websocket.Connection, ev types.Event) error {
	if !h.isRunning() {
		return ErrHubNotRunning
	}
	if conn == nil || !conn.IsAuthenticated() {
		return ErrSenderNotConnected
	}

	eventCtx := &EventContext{
		Event:     ev,
		Sender:    conn,
		RoomID:    conn.GetRoomID(),
		Timestamp: time.Now(),
	}
	select {
	case h.eventChannel <- eventCtx:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// RegisterConnection queues conn and waits until the hub has registered it
// and sent it the room state, so no inbound event can overtake the join.
func (h *Hub) RegisterConnection(conn *websocket.Connection) error {
	if !h.isRunning() {
		return ErrHubNotRunning
	}

	reg := &registration{conn: conn, result: make(chan error, 1)}
	select {
	case h.registerChannel <- reg:
	default:
		return ErrRegisterChannelFull
	}

	select {
	case err := <-reg.result:
		return err
	case <-h.doneChannel:
		return ErrHubNotRunning
	}
}

func (h *Hub) UnregisterConnection(conn *websocket.Connection) error {
	if !h.isRunning() {
		return ErrHubNotRunning
	}
	select {
	case h.unregisterChannel <- conn:
		return nil
	default:
		return ErrUnregisterChannelFull
	}
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.doneChannel)
	defer h.logger.Info("event hub stopped")

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case eventCtx := <-h.eventChannel:
			h.handleEvent(ctx, eventCtx)

		case reg := <-h.registerChannel:
			reg.result <- h.handleRegistration(ctx, reg.conn)

		case conn := <-h.unregisterChannel:
			h.handleDeregistration(ctx, conn)

		case <-ticker.C:
			if c, ok := h.router.(interface{ Cleanup() }); ok {
				c.Cleanup()
			}

		case <-h.shutdownChannel:
			return

		case <-ctx.Done():
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) handleEvent(ctx context.Context, eventCtx *EventContext) {
	ev := eventCtx.Event
	if err := h.router.RouteEvent(ctx, eventCtx.Sender, ev); err != nil {
		h.logger.Debug("event rejected",
			zap.String("type", string(ev.Type)),
			zap.String("user", eventCtx.Sender.GetUsername()),
			zap.String("room", eventCtx.RoomID),
			zap.Error(err))
		h.sendErrorToSender(eventCtx.Sender, err)
	}
}

func (h *Hub) handleRegistration(ctx context.Context, conn *websocket.Connection) error {
	if conn == nil {
		return websocket.ErrNilConnection
	}
	if err := h.registry.RegisterConnection(conn); err != nil {
		return err
	}
	if err := h.router.Join(ctx, conn); err != nil {
		h.registry.UnregisterConnection(conn)
		return err
	}
	h.logger.Info("connection registered",
		zap.String("user", conn.GetUsername()),
		zap.String("role", string(conn.GetRole())),
		zap.String("room", conn.GetRoomID()))
	return nil
}

// handleDeregistration only announces a departure when conn was still the
// user's live connection; a replaced connection leaves silently.
func (h *Hub) handleDeregistration(ctx context.Context, conn *websocket.Connection) {
	if conn == nil || !h.registry.UnregisterConnection(conn) {
		return
	}
	h.router.Leave(ctx, conn)
	h.logger.Info("connection deregistered",
		zap.String("user", conn.GetUsername()),
		zap.String("room", conn.GetRoomID()))
}

func (h *Hub) sendErrorToSender(sender *websocket.Connection, routingErr error) {
	ev := types.Event{Type: types.EventError, Message: routingErr.Error()}
	if err := sender.WriteJSON(ev); err != nil {
		h.logger.Debug("failed to report error to sender",
			zap.String("user", sender.GetUsername()), zap.Error(err))
	}
}
