// Package whiteboard holds the client-side action log, its renderer and the
// tools that operate on it.
package whiteboard

import (
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Board is an action log bound to a drawing surface. Mutations keep the
// surface in sync with the log: appends draw incrementally, anything that
// removes or moves an action triggers a full replay.
type Board struct {
	log     *Log
	surface interfaces.Surface

	// generation changes whenever positions in the log may have shifted,
	// so gestures holding an index can tell their index went stale.
	generation uint64
}

// NewBoard creates an empty board drawing onto surface.
func NewBoard(surface interfaces.Surface) *Board {
	return &Board{log: NewLog(0), surface: surface}
}

// Append adds a to the log and draws only a.
func (b *Board) Append(a types.Action) {
	if _, ok := a.(types.ClearAction); ok {
		b.Clear()
		return
	}
	if dropped := b.log.Append(a); dropped > 0 {
		b.generation++
		b.Replay()
		return
	}
	drawAction(b.surface, a)
}

// UndoLast removes the most recent action and replays. It reports false
// when the log was already empty.
func (b *Board) UndoLast() bool {
	if _, ok := b.log.Pop(); !ok {
		return false
	}
	b.generation++
	b.Replay()
	return true
}

// Clear empties the log and the surface.
func (b *Board) Clear() {
	b.log.Clear()
	b.generation++
	b.surface.Clear()
}

// Translate moves the line or text action at index and replays. Stale or
// immovable indexes are ignored.
func (b *Board) Translate(index int, dx, dy float64) bool {
	if !b.log.Translate(index, dx, dy) {
		return false
	}
	b.Replay()
	return true
}

// Reset replaces the log wholesale, as on a full-state resync.
func (b *Board) Reset(actions []types.Action) {
	b.log.Reset(actions)
	b.generation++
	b.Replay()
}

// Replay clears the surface and redraws every action in log order.
func (b *Board) Replay() {
	b.surface.Clear()
	b.log.each(func(a types.Action) {
		drawAction(b.surface, a)
	})
}

// HitTest returns the index of the topmost movable action near the
// normalized point (nx, ny).
func (b *Board) HitTest(nx, ny float64) (int, bool) {
	return HitTest(b.log.actions, nx, ny)
}

func (b *Board) Len() int {
	return b.log.Len()
}

// At returns the action at index.
func (b *Board) At(index int) (types.Action, bool) {
	return b.log.At(index)
}

// Actions returns a copy of the log.
func (b *Board) Actions() []types.Action {
	return b.log.Snapshot()
}

func (b *Board) Surface() interfaces.Surface {
	return b.surface
}

// Generation identifies the current index layout of the log.
func (b *Board) Generation() uint64 {
	return b.generation
}
