// Package channel is the client end of a room's session channel. A Client
// is owned by one goroutine: its own goroutines never touch its state and
// only hand Signals to the owner, which feeds them back through Handle.
package channel

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	wsconn "liveclass/internal/websocket"
	"liveclass/pkg/types"
)

type signalKind int

const (
	signalDialed signalKind = iota
	signalDialFailed
	signalFrame
	signalClosed
	signalRetry
)

// Signal is a notification from one of a client's goroutines. It carries
// the generation of the connection that produced it so the owner can
// discard anything from a superseded connection.
type Signal struct {
	client *Client
	gen    uint64
	kind   signalKind
	conn   *websocket.Conn
	data   []byte
	err    error
}

// Discard releases anything the signal carries. Owners call it for
// signals that arrive after they dropped the client.
func (s Signal) Discard() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// Poster delivers a Signal to the owner's queue.
type Poster func(Signal)

// Options tunes a Client.
type Options struct {
	RetryDelay       time.Duration
	HandshakeTimeout time.Duration
	Connection       wsconn.Options

	// OnState is called from Handle, Open and Close on every transition.
	OnState func(types.ConnectionState)
}

// Client keeps one session channel to a room open, reconnecting after a
// fixed delay whenever the connection drops. It is not safe for
// concurrent use.
type Client struct {
	url    string
	dialer *websocket.Dialer
	opts   Options
	post   Poster
	logger *zap.Logger

	state      types.ConnectionState
	started    bool
	gen        uint64
	conn       *wsconn.Connection
	retry      *time.Timer
	cancelDial context.CancelFunc
}

// ChannelURL builds {relay}/ws/chat/{channel}/?token=... for roomName.
// http and https relay addresses are mapped to ws and wss.
func ChannelURL(relay, roomName, token string) (string, error) {
	u, err := url.Parse(relay)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/chat/" + types.ChannelName(roomName) + "/"
	q := url.Values{}
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NewClient prepares a channel for roomName. Nothing is dialed until Open.
func NewClient(relay, roomName, token string, post Poster, opts Options, logger *zap.Logger) (*Client, error) {
	target, err := ChannelURL(relay, roomName, token)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("channel client needs a poster")
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url: target,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		opts:   opts,
		post:   post,
		logger: logger.Named("channel").With(zap.String("room", roomName)),
	}, nil
}

// Open starts the first connection attempt.
func (c *Client) Open() error {
	if c.state == types.StateClosedFinal {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true
	c.connect()
	return nil
}

func (c *Client) State() types.ConnectionState {
	return c.state
}

// Send writes ev on the live connection without waiting. Outside the open
// state, or with the write queue full, the event is dropped and an error
// returned; nothing is queued for later.
func (c *Client) Send(ev types.Event) error {
	if c.state != types.StateOpen || c.conn == nil {
		return ErrNotOpen
	}
	if err := c.conn.TryWriteJSON(ev); err != nil {
		return fmt.Errorf("send %s: %w", ev.Type, err)
	}
	return nil
}

// Close stops the retry timer, abandons any dial in flight and closes the
// live connection. The client cannot be reopened.
func (c *Client) Close() {
	if c.state == types.StateClosedFinal {
		return
	}
	c.gen++
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.setState(types.StateClosedFinal)
}

// Handle applies a Signal on the owner's goroutine. It returns the decoded
// event when the signal was an inbound frame of a known type.
func (c *Client) Handle(sig Signal) (types.Event, bool) {
	if sig.client != c || sig.gen != c.gen || c.state == types.StateClosedFinal {
		sig.Discard()
		return types.Event{}, false
	}

	switch sig.kind {
	case signalDialed:
		c.cancelDial = nil
		c.conn = wsconn.NewConnection(sig.conn, c.opts.Connection)
		c.setState(types.StateOpen)
		go c.read(c.gen, c.conn)

	case signalDialFailed:
		c.cancelDial = nil
		c.logger.Debug("dial failed", zap.Error(sig.err))
		c.scheduleRetry()

	case signalFrame:
		ev, err := types.DecodeEvent(sig.data)
		if err != nil {
			c.logger.Debug("ignoring frame", zap.Error(err))
			return types.Event{}, false
		}
		return ev, true

	case signalClosed:
		if sig.err != nil && !wsconn.IsExpectedClose(sig.err) {
			c.logger.Info("connection lost", zap.Error(sig.err))
		}
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
		c.scheduleRetry()

	case signalRetry:
		c.retry = nil
		c.connect()
	}
	return types.Event{}, false
}

func (c *Client) connect() {
	c.gen++
	gen := c.gen
	c.setState(types.StateConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.HandshakeTimeout)
	c.cancelDial = cancel
	go func() {
		defer cancel()
		conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			c.post(Signal{client: c, gen: gen, kind: signalDialFailed, err: err})
			return
		}
		c.post(Signal{client: c, gen: gen, kind: signalDialed, conn: conn})
	}()
}

func (c *Client) read(gen uint64, conn *wsconn.Connection) {
	err := conn.ReadLoop(func(data []byte) {
		c.post(Signal{client: c, gen: gen, kind: signalFrame, data: data})
	})
	_ = conn.Close()
	c.post(Signal{client: c, gen: gen, kind: signalClosed, err: err})
}

func (c *Client) scheduleRetry() {
	c.setState(types.StateClosedWillRetry)
	if c.retry != nil {
		c.retry.Stop()
	}
	gen := c.gen
	c.retry = time.AfterFunc(c.opts.RetryDelay, func() {
		c.post(Signal{client: c, gen: gen, kind: signalRetry})
	})
}

func (c *Client) setState(s types.ConnectionState) {
	c.state = s
	c.logger.Debug("channel state", zap.Stringer("state", s))
	if c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}
