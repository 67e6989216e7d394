package whiteboard

import (
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// drawAction renders one action. Normalized coordinates are scaled by the
// surface's current size at draw time; widths and font sizes are scaled
// from the reference resolution.
func drawAction(s interfaces.Surface, a types.Action) {
	w, h := s.Size()
	switch v := a.(type) {
	case types.DrawAction:
		drawStroke(s, v.Points, v.Color, strokeWidth(v.Width, w))
	case types.EraseAction:
		drawStroke(s, v.Points, types.BackgroundColor, strokeWidth(v.Width, w))
	case types.LineAction:
		s.StrokePath([]types.Point{
			{v.X1 * w, v.Y1 * h},
			{v.X2 * w, v.Y2 * h},
		}, v.Color, strokeWidth(v.Width, w))
	case types.TextAction:
		s.FillText(v.X*w, v.Y*h, v.Content, fontSize(v.FontSize, h), v.Color)
	case types.ClearAction:
		s.Clear()
	}
}

// drawStroke paints a single-point stroke as a dot, since a one-point path
// has no length to stroke.
func drawStroke(s interfaces.Surface, points []types.Point, color string, width float64) {
	w, h := s.Size()
	switch len(points) {
	case 0:
	case 1:
		s.FillCircle(points[0][0]*w, points[0][1]*h, width/2, color)
	default:
		s.StrokePath(toPixels(points, w, h), color, width)
	}
}

func toPixels(points []types.Point, w, h float64) []types.Point {
	px := make([]types.Point, len(points))
	for i, p := range points {
		px[i] = types.Point{p[0] * w, p[1] * h}
	}
	return px
}

func strokeWidth(width, surfaceWidth float64) float64 {
	return width * surfaceWidth / types.ReferenceWidth
}

func fontSize(size, surfaceHeight float64) float64 {
	return size * surfaceHeight / types.ReferenceHeight
}
