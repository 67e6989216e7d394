// Package chat keeps a room's chat log on the client and decides how an
// outgoing message travels.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"liveclass/pkg/types"
)

var ErrNoRoom = errors.New("no room selected")

// Channel is the part of the session channel the log writes to.
type Channel interface {
	State() types.ConnectionState
	Send(ev types.Event) error
}

// HistorySource loads a room's stored history.
type HistorySource interface {
	Messages(ctx context.Context, roomID string) ([]types.ChatMessage, error)
}

// MessagePoster stores a message over REST.
type MessagePoster interface {
	PostMessage(ctx context.Context, roomID, text string) (*types.ChatMessage, error)
}

// Log is the ordered chat of one room. It is owned by a single goroutine.
type Log struct {
	roomID   string
	messages []types.ChatMessage
	now      func() time.Time
}

func NewLog(roomID string) *Log {
	return &Log{roomID: roomID, now: time.Now}
}

func (l *Log) RoomID() string {
	return l.roomID
}

// Messages returns a copy of the log, oldest first.
func (l *Log) Messages() []types.ChatMessage {
	out := make([]types.ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int {
	return len(l.messages)
}

// Replace swaps in a freshly loaded history.
func (l *Log) Replace(history []types.ChatMessage) {
	l.messages = append(l.messages[:0:0], history...)
}

// Load fetches the room history and replaces the log with it.
func (l *Log) Load(ctx context.Context, src HistorySource) error {
	if l.roomID == "" {
		return ErrNoRoom
	}
	history, err := src.Messages(ctx, l.roomID)
	if err != nil {
		return fmt.Errorf("load chat history: %w", err)
	}
	l.Replace(history)
	return nil
}

// Append adds a stored message, as returned by the REST fallback.
func (l *Log) Append(msg types.ChatMessage) {
	if msg.RoomID != "" && msg.RoomID != l.roomID {
		return
	}
	l.messages = append(l.messages, msg)
}

// Receive appends a chat message broadcast on the channel. Channel
// messages have no server identifier, so each gets a local one.
func (l *Log) Receive(ev types.Event) (types.ChatMessage, bool) {
	if ev.Type != types.EventMessage {
		return types.ChatMessage{}, false
	}
	msg := types.ChatMessage{
		ID:         uuid.NewString(),
		RoomID:     l.roomID,
		SenderName: ev.Username,
		UserType:   ev.UserType,
		Content:    ev.Message,
		CreatedAt:  l.now().UTC(),
	}
	l.messages = append(l.messages, msg)
	return msg, true
}

// Post is a REST delivery still to be made. Run may be called from any
// goroutine; the result goes back to the log through Append.
type Post struct {
	RoomID string
	Text   string
	poster MessagePoster
}

// Run posts the message exactly once.
func (p *Post) Run(ctx context.Context) (*types.ChatMessage, error) {
	msg, err := p.poster.PostMessage(ctx, p.RoomID, p.Text)
	if err != nil {
		return nil, fmt.Errorf("post chat message: %w", err)
	}
	return msg, nil
}

// Send validates text and writes it to the channel when the channel is
// open; the message then shows up when the relay broadcasts it. Otherwise
// it returns the single REST Post the caller must run. Nothing is appended
// locally by Send itself.
func (l *Log) Send(text string, ch Channel, poster MessagePoster) (*Post, error) {
	if l.roomID == "" {
		return nil, ErrNoRoom
	}
	if _, err := types.ValidateChatContent(text); err != nil {
		return nil, err
	}
	if ch != nil && ch.State() == types.StateOpen {
		err := ch.Send(types.ChatEvent(text))
		if err == nil {
			return nil, nil
		}
	}
	if poster == nil {
		return nil, fmt.Errorf("chat channel unavailable and no REST fallback configured")
	}
	return &Post{RoomID: l.roomID, Text: text, poster: poster}, nil
}
