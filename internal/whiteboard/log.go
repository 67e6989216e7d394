package whiteboard

import "liveclass/pkg/types"

// Log is an ordered whiteboard action log. Position in the log is z-order:
// later actions draw over earlier ones. A Log is not safe for concurrent
// use; it belongs to a single owner goroutine.
type Log struct {
	actions []types.Action
	max     int
}

// NewLog creates an empty log. When max > 0 the log keeps at most max
// actions and drops the oldest on overflow.
func NewLog(max int) *Log {
	return &Log{max: max}
}

// Append adds a to the end. A ClearAction empties the log instead of being
// stored. It returns how many of the oldest actions were dropped to stay
// within the cap.
func (l *Log) Append(a types.Action) int {
	if _, ok := a.(types.ClearAction); ok {
		l.actions = l.actions[:0]
		return 0
	}
	dropped := 0
	if l.max > 0 && len(l.actions) >= l.max {
		dropped = len(l.actions) - (l.max - 1)
		l.actions = append(l.actions[:0], l.actions[dropped:]...)
	}
	l.actions = append(l.actions, a)
	return dropped
}

// Pop removes and returns the most recent action.
func (l *Log) Pop() (types.Action, bool) {
	if len(l.actions) == 0 {
		return nil, false
	}
	last := l.actions[len(l.actions)-1]
	l.actions[len(l.actions)-1] = nil
	l.actions = l.actions[:len(l.actions)-1]
	return last, true
}

// Translate shifts the line or text action at index in place. An index out
// of range or pointing at an immovable action is a no-op returning false.
func (l *Log) Translate(index int, dx, dy float64) bool {
	if index < 0 || index >= len(l.actions) {
		return false
	}
	moved, ok := types.Translate(l.actions[index], dx, dy)
	if !ok {
		return false
	}
	l.actions[index] = moved
	return true
}

// Reset replaces the whole log with actions, truncated to the cap.
func (l *Log) Reset(actions []types.Action) {
	l.actions = l.actions[:0]
	for _, a := range actions {
		l.Append(a)
	}
}

// Clear empties the log.
func (l *Log) Clear() {
	l.actions = l.actions[:0]
}

func (l *Log) Len() int {
	return len(l.actions)
}

// At returns the action at index.
func (l *Log) At(index int) (types.Action, bool) {
	if index < 0 || index >= len(l.actions) {
		return nil, false
	}
	return l.actions[index], true
}

// Snapshot returns a deep copy of the log in order.
func (l *Log) Snapshot() []types.Action {
	out := types.CloneActions(l.actions)
	if out == nil {
		out = []types.Action{}
	}
	return out
}

func (l *Log) each(fn func(types.Action)) {
	for _, a := range l.actions {
		fn(a)
	}
}
