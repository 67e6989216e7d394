package whiteboard

import (
	"sync"

	"liveclass/pkg/types"
)

// OpKind names a recorded drawing primitive.
type OpKind string

const (
	OpClear  OpKind = "clear"
	OpStroke OpKind = "stroke"
	OpText   OpKind = "text"
	OpCircle OpKind = "circle"
)

// Op is one primitive as it reached the surface, in pixels.
type Op struct {
	Kind     OpKind
	Points   []types.Point
	Color    string
	Width    float64
	X, Y     float64
	Text     string
	FontSize float64
	Radius   float64
}

// Recorder is an in-memory Surface that keeps every primitive drawn onto it.
// It backs the headless client and lets tests compare rendered output.
type Recorder struct {
	mu     sync.Mutex
	width  float64
	height float64
	ops    []Op
}

// NewRecorder creates a recorder with the given pixel size.
func NewRecorder(width, height float64) *Recorder {
	return &Recorder{width: width, height: height}
}

func (r *Recorder) Size() (float64, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

// Resize changes the pixel size. Callers replay the board afterwards.
func (r *Recorder) Resize(width, height float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.width, r.height = width, height
}

func (r *Recorder) Clear() {
	r.record(Op{Kind: OpClear})
}

func (r *Recorder) StrokePath(points []types.Point, color string, width float64) {
	pts := make([]types.Point, len(points))
	copy(pts, points)
	r.record(Op{Kind: OpStroke, Points: pts, Color: color, Width: width})
}

func (r *Recorder) FillText(x, y float64, text string, fontSize float64, color string) {
	r.record(Op{Kind: OpText, X: x, Y: y, Text: text, FontSize: fontSize, Color: color})
}

func (r *Recorder) FillCircle(x, y, radius float64, color string) {
	r.record(Op{Kind: OpCircle, X: x, Y: y, Radius: radius, Color: color})
}

func (r *Recorder) record(op Op) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

// Ops returns every recorded primitive, clears included.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Op, len(r.ops))
	copy(out, r.ops)
	return out
}

// Visible returns the primitives drawn since the most recent clear, which
// is what the surface currently shows.
func (r *Recorder) Visible() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := 0
	for i := len(r.ops) - 1; i >= 0; i-- {
		if r.ops[i].Kind == OpClear {
			start = i + 1
			break
		}
	}
	out := make([]Op, len(r.ops)-start)
	copy(out, r.ops[start:])
	return out
}

// Reset forgets recorded history without touching the size.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
}
