package types

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestDecodeEvent_AcceptsBareAndPrefixedNames(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantType EventType
		check    func(t *testing.T, e Event)
	}{
		{
			name:     "bare draw",
			frame:    `{"type":"draw","points":[[0.1,0.2],[0.3,0.4]],"color":"#ff0000","width":3}`,
			wantType: EventDraw,
			check: func(t *testing.T, e Event) {
				d, ok := e.Action.(DrawAction)
				if !ok {
					t.Fatalf("expected DrawAction, got %T", e.Action)
				}
				if len(d.Points) != 2 || d.Points[1] != (Point{0.3, 0.4}) {
					t.Errorf("unexpected points %v", d.Points)
				}
				if d.Color != "#ff0000" || d.Width != 3 {
					t.Errorf("unexpected stroke style %q %v", d.Color, d.Width)
				}
			},
		},
		{
			name:     "prefixed line",
			frame:    `{"type":"wb_line","x1":0.1,"y1":0.1,"x2":0.5,"y2":0.5,"color":"#000","width":2}`,
			wantType: EventLine,
			check: func(t *testing.T, e Event) {
				l, ok := e.Action.(LineAction)
				if !ok {
					t.Fatalf("expected LineAction, got %T", e.Action)
				}
				if l.X2 != 0.5 {
					t.Errorf("expected x2 0.5, got %v", l.X2)
				}
			},
		},
		{
			name:     "prefixed text keeps fontSize",
			frame:    `{"type":"wb_text","x":0.2,"y":0.3,"content":"hi","fontSize":24,"color":"#123456"}`,
			wantType: EventText,
			check: func(t *testing.T, e Event) {
				txt := e.Action.(TextAction)
				if txt.FontSize != 24 || txt.Content != "hi" {
					t.Errorf("unexpected text %+v", txt)
				}
			},
		},
		{
			name:     "prefixed move",
			frame:    `{"type":"wb_move","index":2,"dx":0.1,"dy":-0.05}`,
			wantType: EventMove,
			check: func(t *testing.T, e Event) {
				if e.Index != 2 || e.DX != 0.1 || e.DY != -0.05 {
					t.Errorf("unexpected move %+v", e)
				}
			},
		},
		{
			name:     "undo",
			frame:    `{"type":"wb_undo"}`,
			wantType: EventUndo,
		},
		{
			name:     "relay chat",
			frame:    `{"type":"message","message":"hello","username":"ms_lee","user_type":"teacher"}`,
			wantType: EventMessage,
			check: func(t *testing.T, e Event) {
				if e.Message != "hello" || e.Username != "ms_lee" || e.UserType != RoleTeacher {
					t.Errorf("unexpected chat %+v", e)
				}
			},
		},
		{
			name:     "state skips unknown actions",
			frame:    `{"type":"whiteboard_state","actions":[{"type":"draw","points":[[0,0]],"color":"#000","width":1},{"type":"sticker"},{"type":"text","x":0,"y":0,"content":"a","fontSize":10,"color":"#000"}]}`,
			wantType: EventWhiteboardState,
			check: func(t *testing.T, e Event) {
				if len(e.Actions) != 2 {
					t.Fatalf("expected 2 actions, got %d", len(e.Actions))
				}
				if e.Actions[1].Type() != ActionText {
					t.Errorf("expected text second, got %s", e.Actions[1].Type())
				}
			},
		},
		{
			name:     "audio data",
			frame:    `{"type":"audio_data","data":"AAAA"}`,
			wantType: EventAudioData,
			check: func(t *testing.T, e Event) {
				if e.Data != "AAAA" {
					t.Errorf("unexpected data %q", e.Data)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := DecodeEvent([]byte(tt.frame))
			if err != nil {
				t.Fatalf("DecodeEvent: %v", err)
			}
			if e.Type != tt.wantType {
				t.Errorf("expected type %s, got %s", tt.wantType, e.Type)
			}
			if tt.check != nil {
				tt.check(t, e)
			}
		})
	}
}

func TestDecodeEvent_UnknownTypeIsReportedNotFatal(t *testing.T) {
	e, err := DecodeEvent([]byte(`{"type":"poll_created","question":"?"}`))
	if !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
	if e.Type != "poll_created" {
		t.Errorf("expected partially decoded type, got %q", e.Type)
	}
}

func TestDecodeEvent_Malformed(t *testing.T) {
	for _, frame := range []string{`not json`, `{}`, `{"type":"move"}`, `{"type":"draw","points":"x"}`} {
		if _, err := DecodeEvent([]byte(frame)); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("%s: expected ErrMalformedPayload, got %v", frame, err)
		}
	}
}

func TestEvent_MarshalFlattensAction(t *testing.T) {
	ev := ActionEvent(EraseAction{Points: []Point{{0.5, 0.5}}, Width: 20})
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if fields["type"] != "erase" {
		t.Errorf("expected type erase, got %v", fields["type"])
	}
	if fields["width"] != float64(20) {
		t.Errorf("expected width at top level, got %v", fields["width"])
	}
	if _, ok := fields["color"]; ok {
		t.Error("erase must not carry a color")
	}
}

func TestEvent_MarshalMoveKeepsZeroIndex(t *testing.T) {
	data, err := json.Marshal(MoveEvent(0, 0.1, 0))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"index":0`) {
		t.Errorf("expected explicit zero index in %s", data)
	}
}

func TestStateEvent_EmptyLogEncodesEmptyArray(t *testing.T) {
	data, err := json.Marshal(StateEvent(nil))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"type":"whiteboard_state","actions":[]}` {
		t.Errorf("unexpected encoding %s", data)
	}
}

func TestActionEvent_ClearHasNoPayload(t *testing.T) {
	ev := ActionEvent(ClearAction{})
	if ev.Type != EventClear || ev.Action != nil {
		t.Errorf("unexpected clear event %+v", ev)
	}
}

func TestUnmarshalActions_ClearTruncates(t *testing.T) {
	actions, err := UnmarshalActions([]byte(`[{"type":"text","x":0,"y":0,"content":"a","fontSize":10,"color":"#000"},{"type":"clear"},{"type":"erase","points":[[0,0]],"width":4}]`))
	if err != nil {
		t.Fatalf("UnmarshalActions: %v", err)
	}
	if len(actions) != 1 || actions[0].Type() != ActionErase {
		t.Errorf("expected only the erase after clear, got %v", actions)
	}
}

func TestTranslate(t *testing.T) {
	text := TextAction{X: 0.1, Y: 0.2, Content: "x", FontSize: 20, Color: "#000"}
	moved, ok := Translate(text, 0.1, 0.1)
	if !ok {
		t.Fatal("text should be movable")
	}
	got := moved.(TextAction)
	if math.Abs(got.X-0.2) > 1e-9 || math.Abs(got.Y-0.3) > 1e-9 {
		t.Errorf("unexpected anchor %v,%v", got.X, got.Y)
	}
	if got.Content != text.Content || got.FontSize != text.FontSize || got.Color != text.Color {
		t.Error("translate must only change the anchor")
	}

	stroke := DrawAction{Points: []Point{{0, 0}}, Color: "#000", Width: 1}
	if _, ok := Translate(stroke, 1, 1); ok {
		t.Error("freehand strokes are not movable")
	}
}

func TestCloneActions_DoesNotAliasPoints(t *testing.T) {
	src := []Action{DrawAction{Points: []Point{{0.1, 0.1}}, Color: "#000", Width: 1}}
	dst := CloneActions(src)
	dst[0].(DrawAction).Points[0] = Point{0.9, 0.9}
	if src[0].(DrawAction).Points[0] != (Point{0.1, 0.1}) {
		t.Error("clone shares point storage with source")
	}
}

func TestChannelName(t *testing.T) {
	tests := map[string]string{
		"Math 101":     "Math_101",
		"physics":      "physics",
		"Q&A: week #2": "Q_A__week__2",
		"café":         "caf_",
	}
	for in, want := range tests {
		if got := ChannelName(in); got != want {
			t.Errorf("ChannelName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateChatContent(t *testing.T) {
	if _, err := ValidateChatContent("   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := ValidateChatContent(strings.Repeat("a", MaxChatLength+1)); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("expected ErrMessageTooLong, got %v", err)
	}
	got, err := ValidateChatContent("  hi  ")
	if err != nil || got != "hi" {
		t.Errorf("expected trimmed text, got %q %v", got, err)
	}
}

func TestValidateAction(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"valid draw", DrawAction{Points: []Point{{0, 0}}, Color: "#ff0000", Width: 3}, false},
		{"draw without points", DrawAction{Color: "#ff0000", Width: 3}, true},
		{"draw bad color", DrawAction{Points: []Point{{0, 0}}, Color: "red", Width: 3}, true},
		{"erase zero width", EraseAction{Points: []Point{{0, 0}}}, true},
		{"line NaN", LineAction{X1: math.NaN(), Color: "#000", Width: 1}, true},
		{"valid line", LineAction{X2: 1, Y2: 1, Color: "#000", Width: 1}, false},
		{"blank text", TextAction{Content: "  ", FontSize: 12, Color: "#000"}, true},
		{"huge font", TextAction{Content: "a", FontSize: 1000, Color: "#000"}, true},
		{"valid text", TextAction{Content: "a", FontSize: 12, Color: "#000"}, false},
		{"clear", ClearAction{}, false},
		{"nil", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAction(tt.action)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAction() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsValidUsername(t *testing.T) {
	valid := []string{"alice", "ms.lee", "student_01", "a-b"}
	invalid := []string{"", "has space", strings.Repeat("a", 51), "bad!"}
	for _, n := range valid {
		if !IsValidUsername(n) {
			t.Errorf("expected %q to be valid", n)
		}
	}
	for _, n := range invalid {
		if IsValidUsername(n) {
			t.Errorf("expected %q to be invalid", n)
		}
	}
}

func TestConnectionStateString(t *testing.T) {
	if StateClosedWillRetry.String() != "closed-will-retry" {
		t.Errorf("unexpected %s", StateClosedWillRetry)
	}
}
