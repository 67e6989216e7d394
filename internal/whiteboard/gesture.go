package whiteboard

import (
	"liveclass/pkg/types"
)

// StrokeGesture previews a freehand pen or eraser stroke directly on the
// surface. The log is untouched until the finished action comes back from
// the relay.
type StrokeGesture struct {
	board  *Board
	erase  bool
	color  string
	width  float64
	points []types.Point
}

// NewStrokeGesture starts a pen stroke, or an eraser stroke when erase is
// set (color is then ignored).
func NewStrokeGesture(board *Board, erase bool, color string, width float64) *StrokeGesture {
	if erase {
		color = types.BackgroundColor
	}
	return &StrokeGesture{board: board, erase: erase, color: color, width: width}
}

// Begin records the first point and paints a dot so a click without drag
// is visible.
func (g *StrokeGesture) Begin(nx, ny float64) {
	g.points = append(g.points[:0], types.Point{nx, ny})
	s := g.board.Surface()
	w, h := s.Size()
	s.FillCircle(nx*w, ny*h, strokeWidth(g.width, w)/2, g.color)
}

// Drag extends the stroke and paints only the newest segment.
func (g *StrokeGesture) Drag(nx, ny float64) {
	if len(g.points) == 0 {
		g.Begin(nx, ny)
		return
	}
	prev := g.points[len(g.points)-1]
	next := types.Point{nx, ny}
	g.points = append(g.points, next)
	s := g.board.Surface()
	w, h := s.Size()
	s.StrokePath(toPixels([]types.Point{prev, next}, w, h), g.color, strokeWidth(g.width, w))
}

// End finishes the stroke and returns the action to send.
func (g *StrokeGesture) End() (types.Action, bool) {
	if len(g.points) == 0 {
		return nil, false
	}
	points := make([]types.Point, len(g.points))
	copy(points, g.points)
	g.points = g.points[:0]
	if g.erase {
		return types.EraseAction{Points: points, Width: g.width}, true
	}
	return types.DrawAction{Points: points, Color: g.color, Width: g.width}, true
}

// LineGesture previews a straight line by replaying the board and drawing
// the candidate segment over it on every drag.
type LineGesture struct {
	board  *Board
	color  string
	width  float64
	start  types.Point
	end    types.Point
	active bool
}

func NewLineGesture(board *Board, color string, width float64) *LineGesture {
	return &LineGesture{board: board, color: color, width: width}
}

func (g *LineGesture) Begin(nx, ny float64) {
	g.start = types.Point{nx, ny}
	g.end = g.start
	g.active = true
}

func (g *LineGesture) Drag(nx, ny float64) {
	if !g.active {
		return
	}
	g.end = types.Point{nx, ny}
	g.board.Replay()
	drawAction(g.board.Surface(), g.action())
}

// End returns the line from the start point to the last drag position.
func (g *LineGesture) End() (types.Action, bool) {
	if !g.active {
		return nil, false
	}
	g.active = false
	return g.action(), true
}

func (g *LineGesture) action() types.LineAction {
	return types.LineAction{
		X1: g.start[0], Y1: g.start[1],
		X2: g.end[0], Y2: g.end[1],
		Color: g.color, Width: g.width,
	}
}

// MoveGesture drags an existing line or text action. Intermediate drags
// translate the board locally; End reverts the local delta and returns a
// single move event so the relay stays the only writer of the log.
type MoveGesture struct {
	board      *Board
	index      int
	generation uint64
	lastX      float64
	lastY      float64
	totalX     float64
	totalY     float64
	active     bool
}

func NewMoveGesture(board *Board) *MoveGesture {
	return &MoveGesture{board: board, index: -1}
}

// Begin hit-tests at (nx, ny) and reports whether an action was grabbed.
func (g *MoveGesture) Begin(nx, ny float64) bool {
	index, ok := g.board.HitTest(nx, ny)
	if !ok {
		g.active = false
		return false
	}
	g.index = index
	g.generation = g.board.Generation()
	g.lastX, g.lastY = nx, ny
	g.totalX, g.totalY = 0, 0
	g.active = true
	return true
}

// Index is the grabbed action, or -1.
func (g *MoveGesture) Index() int {
	if !g.active {
		return -1
	}
	return g.index
}

// Drag translates the grabbed action by the delta since the last call.
func (g *MoveGesture) Drag(nx, ny float64) {
	if !g.stillValid() {
		return
	}
	dx, dy := nx-g.lastX, ny-g.lastY
	g.lastX, g.lastY = nx, ny
	if dx == 0 && dy == 0 {
		return
	}
	if g.board.Translate(g.index, dx, dy) {
		g.totalX += dx
		g.totalY += dy
	}
}

// End returns the accumulated move when it is non-zero. If the log was
// reset or shortened during the drag the gesture is abandoned.
func (g *MoveGesture) End() (types.Event, bool) {
	if !g.stillValid() {
		return types.Event{}, false
	}
	g.active = false
	if g.totalX == 0 && g.totalY == 0 {
		return types.Event{}, false
	}
	g.board.Translate(g.index, -g.totalX, -g.totalY)
	return types.MoveEvent(g.index, g.totalX, g.totalY), true
}

// Cancel reverts any local translation and drops the gesture.
func (g *MoveGesture) Cancel() {
	if g.stillValid() && (g.totalX != 0 || g.totalY != 0) {
		g.board.Translate(g.index, -g.totalX, -g.totalY)
	}
	g.active = false
}

func (g *MoveGesture) stillValid() bool {
	if !g.active {
		return false
	}
	if g.board.Generation() != g.generation {
		g.active = false
		return false
	}
	return true
}
