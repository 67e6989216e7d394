package whiteboard

import (
	"math"
	"testing"

	"liveclass/pkg/types"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestMoveGesture_SingleEventOnRelease tests that a drag produces exactly one move
func TestMoveGesture_SingleEventOnRelease(t *testing.T) {
	board := NewBoard(NewRecorder(1000, 1000))
	board.Append(types.TextAction{X: 0.5, Y: 0.5, Content: "hello", FontSize: 24, Color: "#000"})

	g := NewMoveGesture(board)
	if !g.Begin(0.51, 0.49) {
		t.Fatal("Expected to grab the text")
	}
	g.Drag(0.56, 0.54)
	g.Drag(0.61, 0.59)

	during, _ := board.At(0)
	if !approx(during.(types.TextAction).X, 0.6) {
		t.Errorf("Expected local preview at x=0.6, got %v", during.(types.TextAction).X)
	}

	ev, ok := g.End()
	if !ok {
		t.Fatal("Expected a move event")
	}
	if ev.Type != types.EventMove || ev.Index != 0 {
		t.Errorf("Unexpected event %+v", ev)
	}
	if !approx(ev.DX, 0.1) || !approx(ev.DY, 0.1) {
		t.Errorf("Expected total delta (0.1, 0.1), got (%v, %v)", ev.DX, ev.DY)
	}

	after, _ := board.At(0)
	if !approx(after.(types.TextAction).X, 0.5) || !approx(after.(types.TextAction).Y, 0.5) {
		t.Errorf("Expected preview reverted until the relay applies the move, got %+v", after)
	}
}

func TestMoveGesture_NoMovementNoEvent(t *testing.T) {
	board := NewBoard(NewRecorder(100, 100))
	board.Append(types.LineAction{X1: 0.1, Y1: 0.1, X2: 0.9, Y2: 0.1})

	g := NewMoveGesture(board)
	if !g.Begin(0.5, 0.1) {
		t.Fatal("Expected to grab the line")
	}
	g.Drag(0.5, 0.1)
	if _, ok := g.End(); ok {
		t.Error("Zero total delta should not produce an event")
	}
}

func TestMoveGesture_MissOnEmptyBoard(t *testing.T) {
	g := NewMoveGesture(NewBoard(NewRecorder(100, 100)))
	if g.Begin(0.5, 0.5) {
		t.Error("Begin on an empty board should miss")
	}
	if g.Index() != -1 {
		t.Errorf("Expected index -1, got %d", g.Index())
	}
	if _, ok := g.End(); ok {
		t.Error("End without a grab should not produce an event")
	}
}

func TestMoveGesture_AbandonedWhenLogReset(t *testing.T) {
	board := NewBoard(NewRecorder(100, 100))
	board.Append(types.LineAction{X1: 0.1, Y1: 0.1, X2: 0.9, Y2: 0.1})

	g := NewMoveGesture(board)
	g.Begin(0.5, 0.1)
	g.Drag(0.5, 0.3)

	board.Reset([]types.Action{types.LineAction{X1: 0.2, Y1: 0.2, X2: 0.3, Y2: 0.3}})

	g.Drag(0.5, 0.4)
	if _, ok := g.End(); ok {
		t.Error("Gesture should be abandoned after a resync")
	}
	got, _ := board.At(0)
	if got.(types.LineAction).X1 != 0.2 {
		t.Errorf("Resynced action must be untouched, got %+v", got)
	}
}

func TestMoveGesture_Cancel(t *testing.T) {
	board := NewBoard(NewRecorder(100, 100))
	board.Append(types.LineAction{X1: 0.1, Y1: 0.1, X2: 0.9, Y2: 0.1})

	g := NewMoveGesture(board)
	g.Begin(0.5, 0.1)
	g.Drag(0.5, 0.35)
	g.Cancel()

	got, _ := board.At(0)
	if !approx(got.(types.LineAction).Y1, 0.1) {
		t.Errorf("Cancel should revert the preview, got %+v", got)
	}
}

func TestStrokeGesture_PreviewOnly(t *testing.T) {
	rec := NewRecorder(200, 100)
	board := NewBoard(rec)

	g := NewStrokeGesture(board, false, "#ff0000", 8)
	g.Begin(0.1, 0.1)
	g.Drag(0.2, 0.2)
	g.Drag(0.3, 0.3)
	action, ok := g.End()
	if !ok {
		t.Fatal("Expected a finished stroke")
	}

	draw, isDraw := action.(types.DrawAction)
	if !isDraw {
		t.Fatalf("Expected DrawAction, got %T", action)
	}
	if len(draw.Points) != 3 || draw.Color != "#ff0000" || draw.Width != 8 {
		t.Errorf("Unexpected stroke %+v", draw)
	}
	if board.Len() != 0 {
		t.Error("Preview must not enter the log")
	}

	ops := rec.Ops()
	if len(ops) != 3 || ops[0].Kind != OpCircle || ops[1].Kind != OpStroke {
		t.Errorf("Expected dot then two segments, got %+v", ops)
	}
}

func TestStrokeGesture_Eraser(t *testing.T) {
	g := NewStrokeGesture(NewBoard(NewRecorder(100, 100)), true, "#ff0000", 20)
	g.Begin(0.5, 0.5)
	action, ok := g.End()
	if !ok {
		t.Fatal("Expected a finished stroke")
	}
	erase, isErase := action.(types.EraseAction)
	if !isErase || erase.Width != 20 || len(erase.Points) != 1 {
		t.Errorf("Expected single-point EraseAction, got %+v", action)
	}
}

func TestLineGesture(t *testing.T) {
	rec := NewRecorder(100, 100)
	board := NewBoard(rec)
	board.Append(types.TextAction{X: 0.1, Y: 0.1, Content: "a", FontSize: 12})

	g := NewLineGesture(board, "#00ff00", 3)
	g.Begin(0.2, 0.2)
	g.Drag(0.4, 0.4)
	g.Drag(0.6, 0.8)

	visible := rec.Visible()
	if len(visible) != 2 || visible[1].Kind != OpStroke {
		t.Errorf("Expected board plus one preview line, got %+v", visible)
	}

	action, ok := g.End()
	if !ok {
		t.Fatal("Expected a finished line")
	}
	want := types.LineAction{X1: 0.2, Y1: 0.2, X2: 0.6, Y2: 0.8, Color: "#00ff00", Width: 3}
	if action != want {
		t.Errorf("Expected %+v, got %+v", want, action)
	}
	if board.Len() != 1 {
		t.Error("Preview must not enter the log")
	}
}
