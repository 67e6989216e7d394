package whiteboard

import (
	"math"

	"liveclass/pkg/types"
)

const (
	// HitThreshold is the pick tolerance as a fraction of the surface.
	HitThreshold = 0.02

	// GlyphWidth approximates the advance of one character in units of
	// the font size.
	GlyphWidth = 0.6
)

// HitTest scans actions from newest to oldest and returns the index of the
// first line or text action within HitThreshold of (nx, ny).
func HitTest(actions []types.Action, nx, ny float64) (int, bool) {
	for i := len(actions) - 1; i >= 0; i-- {
		switch v := actions[i].(type) {
		case types.TextAction:
			if hitText(v, nx, ny) {
				return i, true
			}
		case types.LineAction:
			if distanceToSegment(nx, ny, v.X1, v.Y1, v.X2, v.Y2) < HitThreshold {
				return i, true
			}
		}
	}
	return -1, false
}

// hitText tests against the approximate text box. The anchor is the
// baseline-left corner, so the box extends upward from y.
func hitText(t types.TextAction, nx, ny float64) bool {
	textW := float64(len([]rune(t.Content))) * t.FontSize * GlyphWidth / types.ReferenceWidth
	textH := t.FontSize / types.ReferenceHeight
	return nx >= t.X-HitThreshold && nx <= t.X+textW+HitThreshold &&
		ny >= t.Y-textH-HitThreshold && ny <= t.Y+HitThreshold
}

// distanceToSegment projects (px, py) onto the segment, clamping the
// projection parameter to [0, 1].
func distanceToSegment(px, py, x1, y1, x2, y2 float64) float64 {
	dx, dy := x2-x1, y2-y1
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq != 0 {
		t = ((px-x1)*dx + (py-y1)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}
	cx, cy := x1+t*dx, y1+t*dy
	return math.Hypot(px-cx, py-cy)
}
