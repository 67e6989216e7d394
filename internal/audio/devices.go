package audio

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"liveclass/pkg/interfaces"
)

// toneCapture produces a sine wave in real time, one buffer per buffer
// period. It stands in for a microphone on headless clients.
type toneCapture struct {
	rate   int
	frames chan []float32
	cancel context.CancelFunc
	once   sync.Once
}

// ToneSource returns a CaptureSource generating a freq Hz tone at rate,
// delivered in buffers of bufferSize samples.
func ToneSource(freq float64, rate, bufferSize int) interfaces.CaptureSource {
	return func(ctx context.Context) (interfaces.Capture, error) {
		if rate <= 0 || bufferSize <= 0 {
			return nil, ErrMicrophoneUnavailable
		}
		runCtx, cancel := context.WithCancel(context.Background())
		c := &toneCapture{
			rate:   rate,
			frames: make(chan []float32, 4),
			cancel: cancel,
		}
		go c.run(runCtx, freq, bufferSize)
		return c, nil
	}
}

func (c *toneCapture) run(ctx context.Context, freq float64, bufferSize int) {
	defer close(c.frames)
	period := time.Duration(float64(time.Second) * float64(bufferSize) / float64(c.rate))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var n int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			buf := make([]float32, bufferSize)
			for i := range buf {
				buf[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(n)/float64(c.rate)))
				n++
			}
			select {
			case c.frames <- buf:
			default:
				// Dropped while the consumer is behind.
			}
		}
	}
}

func (c *toneCapture) SampleRate() int          { return c.rate }
func (c *toneCapture) Frames() <-chan []float32 { return c.frames }

func (c *toneCapture) Close() error {
	c.once.Do(c.cancel)
	return nil
}

// WriterPlayer renders scheduled audio as raw little-endian int16 PCM on
// an io.Writer, filling gaps in the timeline with silence. Its clock is
// wall time since creation.
type WriterPlayer struct {
	mu      sync.Mutex
	w       io.Writer
	start   time.Time
	now     func() time.Time
	written float64
	closed  bool
}

func NewWriterPlayer(w io.Writer) *WriterPlayer {
	return &WriterPlayer{w: w, start: time.Now(), now: time.Now}
}

// WriterPlayerFactory allocates a fresh WriterPlayer on w per broadcast.
func WriterPlayerFactory(w io.Writer) interfaces.PlayerFactory {
	return func() (interfaces.Player, error) {
		return NewWriterPlayer(w), nil
	}
}

func (p *WriterPlayer) Now() float64 {
	return p.now().Sub(p.start).Seconds()
}

func (p *WriterPlayer) Schedule(samples []float32, sampleRate int, at float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	if sampleRate <= 0 {
		return ErrMalformedFrame
	}

	gap := 0
	if at > p.written {
		gap = int(math.Round((at - p.written) * float64(sampleRate)))
		p.written = at
	}
	buf := make([]byte, 2*(gap+len(samples)))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*(gap+i):], uint16(Quantize(s)))
	}
	if _, err := p.w.Write(buf); err != nil {
		return err
	}
	p.written += float64(len(samples)) / float64(sampleRate)
	return nil
}

func (p *WriterPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
