package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventType is the "type" discriminator of a session channel frame.
type EventType string

const (
	EventWhiteboardState EventType = "whiteboard_state"
	EventDraw            EventType = "draw"
	EventErase           EventType = "erase"
	EventLine            EventType = "line"
	EventText            EventType = "text"
	EventClear           EventType = "clear"
	EventUndo            EventType = "undo"
	EventMove            EventType = "move"
	EventChat            EventType = "chat"
	EventMessage         EventType = "message"
	EventUserJoin        EventType = "user_join"
	EventUserLeave       EventType = "user_leave"
	EventAudioStart      EventType = "audio_start"
	EventAudioStop       EventType = "audio_stop"
	EventAudioData       EventType = "audio_data"
	EventError           EventType = "error"
)

// IsKnown reports whether t is part of the protocol.
func (t EventType) IsKnown() bool {
	switch t {
	case EventWhiteboardState, EventDraw, EventErase, EventLine, EventText,
		EventClear, EventUndo, EventMove, EventChat, EventMessage,
		EventUserJoin, EventUserLeave, EventAudioStart, EventAudioStop,
		EventAudioData, EventError:
		return true
	}
	return false
}

// IsWhiteboard reports whether t mutates the action log.
func (t EventType) IsWhiteboard() bool {
	switch t {
	case EventDraw, EventErase, EventLine, EventText, EventClear, EventUndo, EventMove:
		return true
	}
	return false
}

// IsAudio reports whether t belongs to the audio broadcast.
func (t EventType) IsAudio() bool {
	return t == EventAudioStart || t == EventAudioStop || t == EventAudioData
}

// Event is one frame on the session channel. Which fields are meaningful
// depends on Type:
//
//	draw, erase, line, text   Action
//	whiteboard_state          Actions
//	move                      Index, DX, DY
//	chat                      Message
//	message                   Message, Username, UserType
//	user_join, user_leave     Username
//	audio_start               Username (set by the relay)
//	audio_data                Data (base64 PCM)
//	error                     Message
type Event struct {
	Type     EventType
	Action   Action
	Actions  []Action
	Index    int
	DX       float64
	DY       float64
	Message  string
	Username string
	UserType Role
	Data     string
}

type wireEvent struct {
	Type     string            `json:"type"`
	Actions  []json.RawMessage `json:"actions,omitempty"`
	Index    *int              `json:"index,omitempty"`
	DX       *float64          `json:"dx,omitempty"`
	DY       *float64          `json:"dy,omitempty"`
	Message  string            `json:"message,omitempty"`
	Username string            `json:"username,omitempty"`
	UserType Role              `json:"user_type,omitempty"`
	Data     string            `json:"data,omitempty"`
}

// MarshalJSON writes the flat wire form. Action events carry the action's
// own fields at the top level next to "type".
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventDraw, EventErase, EventLine, EventText:
		if e.Action == nil {
			return nil, fmt.Errorf("%w: %s event without action", ErrMalformedPayload, e.Type)
		}
		body, err := MarshalAction(e.Action)
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		fields["type"], _ = json.Marshal(e.Type)
		return json.Marshal(fields)
	case EventWhiteboardState:
		raw, err := marshalActionList(e.Actions)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			Type    EventType         `json:"type"`
			Actions []json.RawMessage `json:"actions"`
		}{e.Type, raw})
	case EventMove:
		return json.Marshal(struct {
			Type  EventType `json:"type"`
			Index int       `json:"index"`
			DX    float64   `json:"dx"`
			DY    float64   `json:"dy"`
		}{e.Type, e.Index, e.DX, e.DY})
	}
	return json.Marshal(wireEvent{
		Type:     string(e.Type),
		Message:  e.Message,
		Username: e.Username,
		UserType: e.UserType,
		Data:     e.Data,
	})
}

// UnmarshalJSON accepts both bare and relay-prefixed whiteboard names and
// normalizes Type to the bare form. Unknown types decode without error;
// use DecodeEvent to reject them.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if w.Type == "" {
		return fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	*e = Event{
		Type:     EventType(strings.TrimPrefix(w.Type, relayPrefix)),
		Message:  w.Message,
		Username: w.Username,
		UserType: w.UserType,
		Data:     w.Data,
	}
	switch e.Type {
	case EventDraw, EventErase, EventLine, EventText:
		a, err := unmarshalActionAs(ActionType(e.Type), data)
		if err != nil {
			return err
		}
		e.Action = a
	case EventWhiteboardState:
		e.Actions = decodeActionList(w.Actions)
	case EventMove:
		if w.Index == nil {
			return fmt.Errorf("%w: move without index", ErrMalformedPayload)
		}
		e.Index = *w.Index
		if w.DX != nil {
			e.DX = *w.DX
		}
		if w.DY != nil {
			e.DY = *w.DY
		}
	}
	return nil
}

// DecodeEvent parses one inbound frame. An unrecognized type yields
// ErrUnknownEventType together with the partially decoded event.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := e.UnmarshalJSON(data); err != nil {
		return Event{}, err
	}
	if !e.Type.IsKnown() {
		return e, fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	return e, nil
}

// ActionEvent wraps a whiteboard action in its event.
func ActionEvent(a Action) Event {
	if _, ok := a.(ClearAction); ok {
		return Event{Type: EventClear}
	}
	return Event{Type: EventType(a.Type()), Action: a}
}

// StateEvent is the full-state resync frame.
func StateEvent(actions []Action) Event {
	if actions == nil {
		actions = []Action{}
	}
	return Event{Type: EventWhiteboardState, Actions: actions}
}

// MoveEvent asks the relay to translate the action at index.
func MoveEvent(index int, dx, dy float64) Event {
	return Event{Type: EventMove, Index: index, DX: dx, DY: dy}
}

// ChatEvent is the outbound chat frame.
func ChatEvent(text string) Event {
	return Event{Type: EventChat, Message: text}
}

// AudioDataEvent carries one base64 PCM frame.
func AudioDataEvent(payload string) Event {
	return Event{Type: EventAudioData, Data: payload}
}
