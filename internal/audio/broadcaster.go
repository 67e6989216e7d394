package audio

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Channel is the part of the session channel audio is written to.
type Channel interface {
	State() types.ConnectionState
	Send(ev types.Event) error
}

// Frame is one encoded capture buffer on its way from the capture
// goroutine to the owner. End marks the capture stream running dry.
type Frame struct {
	b       *Broadcaster
	gen     uint64
	Payload string
	End     bool
}

// BroadcasterOptions configures a Broadcaster.
type BroadcasterOptions struct {
	Source     interfaces.CaptureSource
	Channel    Channel
	Roles      *Roles
	TargetRate int

	// Post hands frames to the owner, which passes them to HandleFrame.
	Post func(Frame)
}

// Broadcaster captures the microphone and sends it on the channel. Start,
// Stop and HandleFrame must be called from the owning goroutine.
type Broadcaster struct {
	opts   BroadcasterOptions
	logger *zap.Logger

	active  bool
	gen     uint64
	capture interfaces.Capture
	cancel  context.CancelFunc
}

func NewBroadcaster(opts BroadcasterOptions, logger *zap.Logger) *Broadcaster {
	if opts.Roles == nil {
		opts.Roles = &Roles{}
	}
	if opts.TargetRate <= 0 {
		opts.TargetRate = TargetRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{opts: opts, logger: logger.Named("broadcaster")}
}

func (b *Broadcaster) Active() bool {
	return b.active
}

// Start acquires the microphone, announces the broadcast and begins
// streaming. If the microphone cannot be acquired the broadcaster stays
// idle and the error wraps ErrMicrophoneUnavailable.
func (b *Broadcaster) Start(ctx context.Context) error {
	if b.active {
		return nil
	}
	if b.opts.Post == nil {
		return fmt.Errorf("broadcaster has no frame poster")
	}
	if b.opts.Source == nil {
		return fmt.Errorf("%w: no capture source", ErrMicrophoneUnavailable)
	}
	if err := b.opts.Roles.acquire(RoleBroadcaster); err != nil {
		return err
	}
	capture, err := b.opts.Source(ctx)
	if err != nil {
		b.opts.Roles.release(RoleBroadcaster)
		return fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}

	b.gen++
	b.active = true
	b.capture = capture
	b.sendIfOpen(types.Event{Type: types.EventAudioStart})

	pumpCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go b.pump(pumpCtx, capture, b.gen)

	b.logger.Info("broadcast started", zap.Int("capture_rate", capture.SampleRate()))
	return nil
}

// pump encodes capture buffers off the owner's goroutine.
func (b *Broadcaster) pump(ctx context.Context, capture interfaces.Capture, gen uint64) {
	rate := capture.SampleRate()
	frames := capture.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case samples, ok := <-frames:
			if !ok {
				b.opts.Post(Frame{b: b, gen: gen, End: true})
				return
			}
			payload := Encode(samples, rate, b.opts.TargetRate)
			if payload == "" {
				continue
			}
			b.opts.Post(Frame{b: b, gen: gen, Payload: payload})
		}
	}
}

// HandleFrame sends one encoded frame. Frames from an earlier broadcast,
// or produced while the channel is not open, are dropped. It reports
// whether the frame was sent.
func (b *Broadcaster) HandleFrame(f Frame) bool {
	if f.b != b || f.gen != b.gen || !b.active {
		return false
	}
	if f.End {
		b.logger.Info("capture ended")
		b.Stop()
		return false
	}
	if b.opts.Channel == nil || b.opts.Channel.State() != types.StateOpen {
		return false
	}
	if err := b.opts.Channel.Send(types.AudioDataEvent(f.Payload)); err != nil {
		b.logger.Debug("audio frame dropped", zap.Error(err))
		return false
	}
	return true
}

// Stop announces the end of the broadcast and releases the microphone.
func (b *Broadcaster) Stop() {
	if !b.active {
		return
	}
	b.sendIfOpen(types.Event{Type: types.EventAudioStop})
	b.cancel()
	if err := b.capture.Close(); err != nil {
		b.logger.Debug("capture close failed", zap.Error(err))
	}
	b.capture = nil
	b.cancel = nil
	b.active = false
	b.gen++
	b.opts.Roles.release(RoleBroadcaster)
	b.logger.Info("broadcast stopped")
}

func (b *Broadcaster) sendIfOpen(ev types.Event) {
	ch := b.opts.Channel
	if ch == nil || ch.State() != types.StateOpen {
		return
	}
	if err := ch.Send(ev); err != nil {
		b.logger.Debug("audio control not sent", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
