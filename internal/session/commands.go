package session

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"liveclass/internal/audio"
	"liveclass/internal/chat"
	"liveclass/internal/whiteboard"
	"liveclass/pkg/types"
)

// Tool is the pointer tool of the whiteboard.
type Tool int

const (
	ToolPen Tool = iota
	ToolEraser
	ToolLine
	ToolMove
)

func (t Tool) String() string {
	switch t {
	case ToolPen:
		return "pen"
	case ToolEraser:
		return "eraser"
	case ToolLine:
		return "line"
	case ToolMove:
		return "move"
	default:
		return "unknown"
	}
}

// ParseTool is the inverse of Tool.String.
func ParseTool(s string) (Tool, bool) {
	for _, t := range []Tool{ToolPen, ToolEraser, ToolLine, ToolMove} {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

type gesture interface {
	Begin(nx, ny float64)
	Drag(nx, ny float64)
	End() (types.Action, bool)
}

type toolState struct {
	tool  Tool
	color string
	width float64

	stroke gesture
	move   *whiteboard.MoveGesture
}

func defaultTools() toolState {
	return toolState{tool: ToolPen, color: "#000000", width: 3}
}

// cancel drops any gesture in progress, reverting a local move preview.
func (t *toolState) cancel() {
	t.stroke = nil
	if t.move != nil {
		t.move.Cancel()
		t.move = nil
	}
}

func (c *Controller) requireTeacher() error {
	if c.opts.Role != types.RoleTeacher {
		return ErrNotTeacher
	}
	if c.room == nil {
		return ErrNoRoom
	}
	return nil
}

// send writes a whiteboard event. Without relay echoes the event is
// applied locally once it is on the wire.
func (c *Controller) send(ev types.Event) error {
	if err := (liveChannel{c}).Send(ev); err != nil {
		return err
	}
	if !c.opts.RelayEchoes {
		c.applyWhiteboard(ev)
	}
	return nil
}

func (c *Controller) sendAction(a types.Action) error {
	if err := c.requireTeacher(); err != nil {
		return err
	}
	if err := types.ValidateAction(a); err != nil {
		return err
	}
	return c.send(types.ActionEvent(a))
}

// PenStroke draws a freehand stroke through normalized points.
func (c *Controller) PenStroke(points []types.Point, color string, width float64) error {
	return c.call(func() error {
		return c.sendAction(types.DrawAction{Points: points, Color: color, Width: width})
	})
}

// EraserStroke erases along normalized points.
func (c *Controller) EraserStroke(points []types.Point, width float64) error {
	return c.call(func() error {
		return c.sendAction(types.EraseAction{Points: points, Width: width})
	})
}

func (c *Controller) Line(x1, y1, x2, y2 float64, color string, width float64) error {
	return c.call(func() error {
		return c.sendAction(types.LineAction{X1: x1, Y1: y1, X2: x2, Y2: y2, Color: color, Width: width})
	})
}

// Text places trimmed content at a normalized anchor.
func (c *Controller) Text(x, y float64, content string, fontSize float64, color string) error {
	return c.call(func() error {
		content = strings.TrimSpace(content)
		return c.sendAction(types.TextAction{X: x, Y: y, Content: content, FontSize: fontSize, Color: color})
	})
}

// Move translates the line or text action at index.
func (c *Controller) Move(index int, dx, dy float64) error {
	return c.call(func() error {
		if err := c.requireTeacher(); err != nil {
			return err
		}
		a, ok := c.board.At(index)
		if !ok || !types.Movable(a) {
			return ErrNothingToMove
		}
		return c.send(types.MoveEvent(index, dx, dy))
	})
}

func (c *Controller) Clear() error {
	return c.call(func() error {
		if err := c.requireTeacher(); err != nil {
			return err
		}
		return c.send(types.Event{Type: types.EventClear})
	})
}

// Undo asks the relay to drop the most recent action.
func (c *Controller) Undo() error {
	return c.call(func() error {
		if err := c.requireTeacher(); err != nil {
			return err
		}
		return c.send(types.Event{Type: types.EventUndo})
	})
}

// ToggleMicrophone starts or stops the broadcast. When the microphone
// cannot be acquired a notice is raised and the error returned.
func (c *Controller) ToggleMicrophone() error {
	return c.call(func() error {
		if err := c.requireTeacher(); err != nil {
			return err
		}
		if c.broadcaster.Active() {
			c.broadcaster.Stop()
			return nil
		}
		err := c.broadcaster.Start(c.ctx)
		if errors.Is(err, audio.ErrMicrophoneUnavailable) {
			c.logger.Warn("microphone unavailable", zap.Error(err))
			c.addNotice(MicrophoneNotice)
		}
		return err
	})
}

// SetTool picks the pointer tool. An unfinished gesture is abandoned.
func (c *Controller) SetTool(tool Tool, color string, width float64) error {
	return c.call(func() error {
		c.tools.cancel()
		c.tools.tool = tool
		if color != "" {
			c.tools.color = color
		}
		if width > 0 {
			c.tools.width = width
		}
		return nil
	})
}

// PointerDown starts a gesture with the current tool at a normalized point.
func (c *Controller) PointerDown(nx, ny float64) error {
	return c.call(func() error {
		if err := c.requireTeacher(); err != nil {
			return err
		}
		c.tools.cancel()
		switch c.tools.tool {
		case ToolPen, ToolEraser:
			c.tools.stroke = whiteboard.NewStrokeGesture(c.board, c.tools.tool == ToolEraser, c.tools.color, c.tools.width)
		case ToolLine:
			c.tools.stroke = whiteboard.NewLineGesture(c.board, c.tools.color, c.tools.width)
		case ToolMove:
			g := whiteboard.NewMoveGesture(c.board)
			if !g.Begin(nx, ny) {
				return ErrNothingToMove
			}
			c.tools.move = g
			return nil
		default:
			return ErrUnsupportedTool
		}
		c.tools.stroke.Begin(nx, ny)
		return nil
	})
}

// PointerMove extends the gesture in progress.
func (c *Controller) PointerMove(nx, ny float64) error {
	return c.call(func() error {
		switch {
		case c.tools.stroke != nil:
			c.tools.stroke.Drag(nx, ny)
		case c.tools.move != nil:
			c.tools.move.Drag(nx, ny)
		default:
			return ErrNoGesture
		}
		return nil
	})
}

// PointerUp finishes the gesture and sends its single resulting event.
func (c *Controller) PointerUp() error {
	return c.call(func() error {
		switch {
		case c.tools.stroke != nil:
			g := c.tools.stroke
			c.tools.stroke = nil
			a, ok := g.End()
			if !ok {
				return nil
			}
			return c.sendAction(a)
		case c.tools.move != nil:
			g := c.tools.move
			c.tools.move = nil
			ev, ok := g.End()
			if !ok {
				return nil
			}
			return c.send(ev)
		}
		return ErrNoGesture
	})
}

// SendChat delivers text over the channel when it is open, otherwise with
// one REST post whose stored message is appended when it returns.
func (c *Controller) SendChat(text string) error {
	return c.call(func() error {
		if c.chat == nil {
			return ErrNoRoom
		}
		var poster chat.MessagePoster
		if c.backend != nil {
			poster = c.backend
		}
		post, err := c.chat.Send(text, liveChannel{c}, poster)
		if err != nil || post == nil {
			return err
		}
		log := c.chat
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.RequestTimeout)
		go func() {
			defer cancel()
			msg, err := post.Run(ctx)
			c.post(chatPosted{log: log, msg: msg, err: err})
		}()
		return nil
	})
}

func (c *Controller) handleChatPosted(m chatPosted) {
	if m.log != c.chat {
		return
	}
	if m.err != nil {
		c.logger.Warn("chat message not delivered", zap.Error(m.err))
		return
	}
	c.chat.Append(*m.msg)
	c.emit(Update{Kind: UpdateChat, Message: *m.msg})
}
