package types

// ActionType discriminates the whiteboard action variants.
type ActionType string

const (
	ActionDraw  ActionType = "draw"
	ActionErase ActionType = "erase"
	ActionLine  ActionType = "line"
	ActionText  ActionType = "text"
	ActionClear ActionType = "clear"
)

// Reference resolution that stroke widths and font sizes are expressed against.
// Coordinates themselves are normalized and never depend on it.
const (
	ReferenceWidth  = 1920
	ReferenceHeight = 1080
)

// BackgroundColor is the surface color; erase strokes are painted with it.
const BackgroundColor = "#ffffff"

// Point is a normalized [x, y] pair in the 0..1 range.
type Point [2]float64

// Action is one whiteboard operation. The set of variants is closed:
// DrawAction, EraseAction, LineAction, TextAction and ClearAction.
// Consumers switch on the concrete type.
type Action interface {
	Type() ActionType
	isAction()
}

// DrawAction is a freehand pen stroke.
type DrawAction struct {
	Points []Point `json:"points"`
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
}

// EraseAction is a freehand stroke painted with BackgroundColor.
type EraseAction struct {
	Points []Point `json:"points"`
	Width  float64 `json:"width"`
}

// LineAction is a straight segment between two normalized endpoints.
type LineAction struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

// TextAction is a text label anchored at its baseline-left corner.
type TextAction struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Content  string  `json:"content"`
	FontSize float64 `json:"fontSize"`
	Color    string  `json:"color"`
}

// ClearAction drops every prior action.
type ClearAction struct{}

func (DrawAction) Type() ActionType  { return ActionDraw }
func (EraseAction) Type() ActionType { return ActionErase }
func (LineAction) Type() ActionType  { return ActionLine }
func (TextAction) Type() ActionType  { return ActionText }
func (ClearAction) Type() ActionType { return ActionClear }

func (DrawAction) isAction()  {}
func (EraseAction) isAction() {}
func (LineAction) isAction()  {}
func (TextAction) isAction()  {}
func (ClearAction) isAction() {}

// Movable reports whether the move tool may translate a.
func Movable(a Action) bool {
	switch a.(type) {
	case LineAction, TextAction:
		return true
	default:
		return false
	}
}

// Translate returns a shifted by (dx, dy). Only line and text actions move;
// for every other variant the action is returned unchanged with ok == false.
func Translate(a Action, dx, dy float64) (Action, bool) {
	switch v := a.(type) {
	case LineAction:
		v.X1 += dx
		v.Y1 += dy
		v.X2 += dx
		v.Y2 += dy
		return v, true
	case TextAction:
		v.X += dx
		v.Y += dy
		return v, true
	default:
		return a, false
	}
}

// CloneActions copies the slice and every point buffer so the result shares
// no memory with src.
func CloneActions(src []Action) []Action {
	if src == nil {
		return nil
	}
	out := make([]Action, len(src))
	for i, a := range src {
		switch v := a.(type) {
		case DrawAction:
			v.Points = append([]Point(nil), v.Points...)
			out[i] = v
		case EraseAction:
			v.Points = append([]Point(nil), v.Points...)
			out[i] = v
		default:
			out[i] = a
		}
	}
	return out
}
