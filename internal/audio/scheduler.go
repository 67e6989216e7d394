package audio

import "time"

// Clock is a playback timeline in seconds.
type Clock interface {
	Now() float64
}

// Scheduler lays received chunks end to end on a Clock. A chunk that
// arrives late starts immediately; if the queue has run more than maxLead
// ahead of the clock it is cut back to resetLead.
type Scheduler struct {
	clock     Clock
	next      float64
	maxLead   float64
	resetLead float64
}

func NewScheduler(clock Clock, maxLead, resetLead time.Duration) *Scheduler {
	if maxLead <= 0 {
		maxLead = time.Second
	}
	if resetLead <= 0 {
		resetLead = 50 * time.Millisecond
	}
	return &Scheduler{
		clock:     clock,
		maxLead:   maxLead.Seconds(),
		resetLead: resetLead.Seconds(),
	}
}

// Next returns the start time for a chunk of the given duration in
// seconds and advances the queue past it.
func (s *Scheduler) Next(duration float64) float64 {
	now := s.clock.Now()
	if s.next < now {
		s.next = now
	}
	if s.next > now+s.maxLead {
		s.next = now + s.resetLead
	}
	at := s.next
	s.next += duration
	return at
}

// Reset forgets the queue.
func (s *Scheduler) Reset() {
	s.next = 0
}

// Lead is how far the queue currently runs ahead of the clock.
func (s *Scheduler) Lead() float64 {
	if d := s.next - s.clock.Now(); d > 0 {
		return d
	}
	return 0
}
