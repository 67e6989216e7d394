package session

import (
	"go.uber.org/zap"

	"liveclass/pkg/types"
)

// applyInbound applies one relay event. Events are applied strictly in
// delivery order; anything that cannot be applied is dropped.
func (c *Controller) applyInbound(ev types.Event) {
	switch {
	case ev.Type == types.EventWhiteboardState || ev.Type.IsWhiteboard():
		if !c.applyWhiteboard(ev) {
			return
		}

	case ev.Type == types.EventMessage || ev.Type == types.EventChat:
		if c.chat == nil {
			return
		}
		ev.Type = types.EventMessage
		msg, ok := c.chat.Receive(ev)
		if !ok {
			return
		}
		c.emit(Update{Kind: UpdateChat, Message: msg})
		return

	case ev.Type == types.EventUserJoin:
		if ev.Username != "" {
			c.presence[ev.Username] = true
		}

	case ev.Type == types.EventUserLeave:
		delete(c.presence, ev.Username)

	case ev.Type.IsAudio():
		c.applyAudio(ev)

	case ev.Type == types.EventError:
		c.logger.Warn("relay reported an error", zap.String("message", ev.Message))
	}
	c.emit(Update{Kind: UpdateEvent, Event: ev})
}

// applyWhiteboard mutates the board. Actions are applied exactly as the
// relay delivered them so indexes match every other participant. Stale
// move or undo targets are no-ops.
func (c *Controller) applyWhiteboard(ev types.Event) bool {
	switch ev.Type {
	case types.EventWhiteboardState:
		c.board.Reset(ev.Actions)
	case types.EventDraw, types.EventErase, types.EventLine, types.EventText:
		c.board.Append(ev.Action)
	case types.EventClear:
		c.board.Clear()
	case types.EventUndo:
		c.board.UndoLast()
	case types.EventMove:
		c.board.Translate(ev.Index, ev.DX, ev.DY)
	default:
		return false
	}
	return true
}

// applyAudio follows the teacher's broadcast. A teacher never plays audio
// back; students track whether the teacher is speaking and play it.
func (c *Controller) applyAudio(ev types.Event) {
	switch ev.Type {
	case types.EventAudioStart:
		c.teacherSpeaking = true
	case types.EventAudioStop:
		c.teacherSpeaking = false
	}
	if c.opts.Role == types.RoleTeacher {
		return
	}
	if err := c.listener.Handle(ev); err != nil {
		c.logger.Debug("audio event not played", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
