package interfaces

import (
	"context"

	"liveclass/pkg/types"
)

// Surface is the drawing target of the whiteboard renderer. All coordinates
// passed to it are physical pixels.
type Surface interface {
	Size() (width, height float64)
	Clear()
	StrokePath(points []types.Point, color string, width float64)
	FillText(x, y float64, text string, fontSize float64, color string)
	FillCircle(x, y, radius float64, color string)
}

// Capture is a live microphone stream. Frames delivers mono float samples
// in [-1, 1] at SampleRate and is closed when the stream ends.
type Capture interface {
	SampleRate() int
	Frames() <-chan []float32
	Close() error
}

// CaptureSource acquires the microphone. It fails when the device is
// missing or access is denied.
type CaptureSource func(ctx context.Context) (Capture, error)

// Player is an audio output with its own timeline measured in seconds.
type Player interface {
	// Now is the current position of the output timeline.
	Now() float64

	// Schedule plays mono samples recorded at sampleRate starting at the
	// timeline position at.
	Schedule(samples []float32, sampleRate int, at float64) error

	Close() error
}

// PlayerFactory allocates a playback engine.
type PlayerFactory func() (Player, error)
