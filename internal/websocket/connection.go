package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"liveclass/pkg/types"
)

// Options tunes a Connection. The same wrapper serves relay-side peers and
// the client's dialed channel.
type Options struct {
	BufferSize   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadTimeout  time.Duration
	MaxFrameSize int64
}

// DefaultOptions matches the classroom defaults: 100 queued frames, a 30s
// heartbeat and a 60s read deadline.
func DefaultOptions() Options {
	return Options{
		BufferSize:   100,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		MaxFrameSize: 1 << 20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = d.MaxFrameSize
	}
	return o
}

// Connection implements interfaces.Connection over a gorilla websocket.
// All writes go through one writer goroutine; the socket itself is never
// written from anywhere else.
type Connection struct {
	conn    *websocket.Conn
	opts    Options
	writeCh chan []byte

	username      string
	role          types.Role
	roomID        string
	authenticated bool
	mu            sync.RWMutex

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps conn and starts its writer.
func NewConnection(conn *websocket.Conn, opts Options) *Connection {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		opts:    opts,
		writeCh: make(chan []byte, opts.BufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	go c.writeLoop()
	return c
}

// writeLoop owns every write on the socket, pings included. It is also the
// only place the socket gets closed, which unblocks the reader.
func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.cancel()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return
			}
		case <-c.ctx.Done():
			deadline := time.Now().Add(time.Second)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

// WriteJSON queues v for delivery. It fails when the connection is closed
// or the queue stays full for the write timeout.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	timer := time.NewTimer(c.opts.WriteTimeout)
	defer timer.Stop()
	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// TryWriteJSON queues v only if the write queue has room. It never waits,
// so an owner loop can send without stalling on a slow peer.
func (c *Connection) TryWriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrWriteQueueFull
	}
}

// ReadLoop reads text frames and hands each to handle until the peer goes
// away, the read deadline lapses or the connection is closed. Pongs extend
// the deadline. It returns the error that ended the loop.
func (c *Connection) ReadLoop(handle func([]byte)) error {
	c.conn.SetReadLimit(c.opts.MaxFrameSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout)); err != nil {
		return err
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout)); err != nil {
			return err
		}
		if messageType == websocket.TextMessage {
			handle(data)
		}
	}
}

// Close asks the writer to send a close frame and release the socket. It
// is safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(c.cancel)
	return nil
}

// Done is closed once Close has been called.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// IsExpectedClose reports whether err is an ordinary end of a session
// rather than a transport failure worth logging.
func IsExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func (c *Connection) SetCredentials(username string, role types.Role, roomID string) error {
	if !types.IsValidUsername(username) {
		return types.ErrInvalidUsername
	}
	if !role.IsValid() {
		return types.ErrInvalidRole
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.role = role
	c.roomID = roomID
	c.authenticated = true
	return nil
}

func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Connection) GetUsername() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Connection) GetRole() types.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Connection) GetRoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}
