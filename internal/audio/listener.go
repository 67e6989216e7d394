package audio

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// ListenerOptions configures a Listener.
type ListenerOptions struct {
	Players   interfaces.PlayerFactory
	Roles     *Roles
	Rate      int
	MaxLead   time.Duration
	ResetLead time.Duration
}

// Listener plays a broadcast. A player exists only between audio_start
// and audio_stop.
type Listener struct {
	opts   ListenerOptions
	logger *zap.Logger

	player interfaces.Player
	sched  *Scheduler
}

func NewListener(opts ListenerOptions, logger *zap.Logger) *Listener {
	if opts.Roles == nil {
		opts.Roles = &Roles{}
	}
	if opts.Rate <= 0 {
		opts.Rate = TargetRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{opts: opts, logger: logger.Named("listener")}
}

func (l *Listener) Active() bool {
	return l.player != nil
}

// Handle dispatches an audio event.
func (l *Listener) Handle(ev types.Event) error {
	switch ev.Type {
	case types.EventAudioStart:
		return l.HandleStart()
	case types.EventAudioData:
		return l.HandleData(ev.Data)
	case types.EventAudioStop:
		l.HandleStop()
	}
	return nil
}

// HandleStart opens a player and starts a fresh queue. A repeated start
// keeps the player and only resets the queue.
func (l *Listener) HandleStart() error {
	if l.player != nil {
		l.sched.Reset()
		return nil
	}
	if l.opts.Players == nil {
		return fmt.Errorf("%w: no player factory", ErrPlaybackUnavailable)
	}
	if err := l.opts.Roles.acquire(RoleListener); err != nil {
		return err
	}
	p, err := l.opts.Players()
	if err != nil {
		l.opts.Roles.release(RoleListener)
		return fmt.Errorf("%w: %v", ErrPlaybackUnavailable, err)
	}
	l.player = p
	l.sched = NewScheduler(p, l.opts.MaxLead, l.opts.ResetLead)
	l.logger.Debug("playback started")
	return nil
}

// HandleData schedules one frame right after the previous one. Frames
// arriving with no player open are ignored.
func (l *Listener) HandleData(payload string) error {
	if l.player == nil {
		return nil
	}
	samples, err := Decode(payload)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}
	duration := float64(len(samples)) / float64(l.opts.Rate)
	at := l.sched.Next(duration)
	return l.player.Schedule(samples, l.opts.Rate, at)
}

// HandleStop releases the player and its clock.
func (l *Listener) HandleStop() {
	if l.player == nil {
		return
	}
	if err := l.player.Close(); err != nil {
		l.logger.Debug("player close failed", zap.Error(err))
	}
	l.player = nil
	l.sched = nil
	l.opts.Roles.release(RoleListener)
	l.logger.Debug("playback stopped")
}
