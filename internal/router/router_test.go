package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"liveclass/internal/websocket"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Test WebSocket upgrader for creating test connections
var testUpgrader = gorillaws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// member is a registered relay connection plus the client end that
// receives whatever the router delivers to it.
type member struct {
	conn *websocket.Connection
	peer *gorillaws.Conn
}

func (m *member) next(t *testing.T) types.Event {
	t.Helper()
	_ = m.peer.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := m.peer.ReadMessage()
	if err != nil {
		t.Fatalf("%s: read failed: %v", m.conn.GetUsername(), err)
	}
	ev, err := types.DecodeEvent(data)
	if err != nil {
		t.Fatalf("%s: decode failed: %v", m.conn.GetUsername(), err)
	}
	return ev
}

// until reads events up to and including the first of type stop.
func (m *member) until(t *testing.T, stop types.EventType) []types.Event {
	t.Helper()
	var evs []types.Event
	for {
		ev := m.next(t)
		evs = append(evs, ev)
		if ev.Type == stop {
			return evs
		}
	}
}

// setupTestConnection creates and registers a connection for testing
func setupTestConnection(t *testing.T, registry *websocket.Registry, username string, role types.Role, roomID string) *member {
	t.Helper()
	accepted := make(chan *gorillaws.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err == nil {
			accepted <- conn
		}
	}))
	t.Cleanup(server.Close)

	peer, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Failed to create test WebSocket connection: %v", err)
	}
	t.Cleanup(func() { _ = peer.Close() })

	conn := websocket.NewConnection(<-accepted, websocket.Options{})
	t.Cleanup(func() { _ = conn.Close() })
	if err := conn.SetCredentials(username, role, roomID); err != nil {
		t.Fatalf("Failed to set credentials: %v", err)
	}
	if err := registry.RegisterConnection(conn); err != nil {
		t.Fatalf("Failed to register connection: %v", err)
	}
	return &member{conn: conn, peer: peer}
}

// memoryStore is a BoardStore and chat sink kept in memory.
type memoryStore struct {
	interfaces.DatabaseManager
	mu       sync.Mutex
	boards   map[string][]types.Action
	saves    int
	messages []*types.ChatMessage
}

func newMemoryStore() *memoryStore {
	return &memoryStore{boards: make(map[string][]types.Action)}
}

func (s *memoryStore) LoadBoard(ctx context.Context, roomID string) ([]types.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.CloneActions(s.boards[roomID]), nil
}

func (s *memoryStore) SaveBoard(ctx context.Context, roomID string, actions []types.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.boards[roomID] = types.CloneActions(actions)
	return nil
}

func (s *memoryStore) StoreMessage(ctx context.Context, msg *types.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func stroke(y float64) types.Action {
	return types.DrawAction{Points: []types.Point{{0.1, y}, {0.2, y}}, Color: "#000000", Width: 2}
}

// TestRouter_InterfaceCompliance tests architectural validation - interface compliance
func TestRouter_InterfaceCompliance(t *testing.T) {
	var _ interfaces.EventRouter = (*Router)(nil)
}

// TestRouter_Join tests functional validation - a joiner gets the full board first, then everyone sees the join
func TestRouter_Join(t *testing.T) {
	registry := websocket.NewRegistry(nil)
	store := newMemoryStore()
	store.boards["room-1"] = []types.Action{stroke(0.1), stroke(0.2)}
	router := NewRouter(registry, store, store, Options{}, nil)
	ctx := context.Background()

	teacher := setupTestConnection(t, registry, "teach", types.RoleTeacher, "room-1")
	if err := router.Join(ctx, teacher.conn); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	state := teacher.next(t)
	if state.Type != types.EventWhiteboardState || len(state.Actions) != 2 {
		t.Fatalf("First frame = %+v", state)
	}
	if ev := teacher.next(t); ev.Type != types.EventUserJoin || ev.Username != "teach" {
		t.Errorf("Joiner should see its own join, got %+v", ev)
	}

	student := setupTestConnection(t, registry, "stu", types.RoleStudent, "room-1")
	if err := router.Join(ctx, student.conn); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if ev := student.next(t); ev.Type != types.EventWhiteboardState || len(ev.Actions) != 2 {
		t.Errorf("Student state = %+v", ev)
	}
	if ev := teacher.next(t); ev.Type != types.EventUserJoin || ev.Username != "stu" {
		t.Errorf("Teacher should see the student join, got %+v", ev)
	}
}

// TestRouter_WhiteboardRouting tests functional validation - edits are applied once and fanned out to the whole room in order
func TestRouter_WhiteboardRouting(t *testing.T) {
	registry := websocket.NewRegistry(nil)
	store := newMemoryStore()
	router := NewRouter(registry, nil, store, Options{}, nil)
	ctx := context.Background()

	teacher := setupTestConnection(t, registry, "teach", types.RoleTeacher, "room-1")
	student := setupTestConnection(t, registry, "stu", types.RoleStudent, "room-1")
	text := types.TextAction{X: 0.5, Y: 0.5, Content: "E=mc2", FontSize: 20, Color: "#ff0000"}

	events := []types.Event{
		types.ActionEvent(stroke(0.1)),
		types.ActionEvent(text),
		types.MoveEvent(0, 0.1, 0.1), // strokes do not move
		types.MoveEvent(7, 0.1, 0.1), // stale index
		types.MoveEvent(1, 0.1, -0.1),
		{Type: types.EventUndo},
		{Type: types.EventUndo},
		{Type: types.EventUndo}, // empty board
		types.ActionEvent(stroke(0.3)),
	}
	for i, ev := range events {
		if err := router.RouteEvent(ctx, teacher.conn, ev); err != nil {
			t.Fatalf("RouteEvent %d failed: %v", i, err)
		}
	}

	want := []types.EventType{types.EventDraw, types.EventText, types.EventMove, types.EventUndo, types.EventUndo, types.EventDraw}
	for _, m := range []*member{teacher, student} {
		for i, w := range want {
			if ev := m.next(t); ev.Type != w {
				t.Fatalf("%s frame %d = %s, want %s", m.conn.GetUsername(), i, ev.Type, w)
			}
		}
	}

	board := router.Snapshot(ctx, "room-1")
	if len(board) != 1 || board[0].(types.DrawAction).Points[0][1] != 0.3 {
		t.Errorf("Board = %+v", board)
	}
	if store.saves != 6 {
		t.Errorf("Saves = %d, want one per applied edit", store.saves)
	}

	if err := router.RouteEvent(ctx, teacher.conn, types.Event{Type: types.EventClear}); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if ev := student.next(t); ev.Type != types.EventClear {
		t.Errorf("Expected clear, got %s", ev.Type)
	}
	if got := router.Snapshot(ctx, "room-1"); len(got) != 0 {
		t.Errorf("Board after clear = %d actions", len(got))
	}
}

// TestRouter_MoveTranslatesAnchor tests functional validation - the relay log holds the moved text
func TestRouter_MoveTranslatesAnchor(t *testing.T) {
	registry := websocket.NewRegistry(nil)
	router := NewRouter(registry, nil, nil, Options{}, nil)
	ctx := context.Background()
	teacher := setupTestConnection(t, registry, "teach", types.RoleTeacher, "room-1")

	line := types.LineAction{X1: 0.1, Y1: 0.1, X2: 0.3, Y2: 0.3, Color: "#000000", Width: 2}
	for _, ev := range []types.Event{types.ActionEvent(line), types.MoveEvent(0, 0.2, 0.1)} {
		if err := router.RouteEvent(ctx, teacher.conn, ev); err != nil {
			t.Fatalf("RouteEvent failed: %v", err)
		}
	}
	got := router.Snapshot(ctx, "room-1")[0].(types.LineAction)
	if got.X1 < 0.299 || got.X1 > 0.301 || got.Y2 < 0.399 || got.Y2 > 0.401 {
		t.Errorf("Moved line = %+v", got)
	}
	teacher.until(t, types.EventMove)
}

// TestRouter_StudentPermissions tests functional validation - students may only chat
func TestRouter_StudentPermissions(t *testing.T) {
	registry := websocket.NewRegistry(nil)
	router := NewRouter(registry, nil, nil, Options{}, nil)
	student := setupTestConnection(t, registry, "stu", types.RoleStudent, "room-1")

	for _, ev := range []types.Event{
		types.ActionEvent(stroke(0.1)),
		{Type: types.EventClear},
		{Type: types.EventUndo},
		types.MoveEvent(0, 1, 1),
		{Type: types.EventAudioStart},
		types.AudioDataEvent("AAA="),
	} {
		if err := router.RouteEvent(context.Background(), student.conn, ev); !errors.Is(err, ErrUnauthorizedEventType) {
			t.Errorf("%s: expected ErrUnauthorizedEventType, got %v", ev.Type, err)
		}
	}
	if got := router.Snapshot(context.Background(), "room-1"); len(got) != 0 {
		t.Errorf("Student changed the board: %+v", got)
	}
}

// TestRouter_Chat tests functional validation - chat is stored and rebroadcast with the sender's identity
func TestRouter_Chat(t *testing.T) {
	registry := websocket.NewRegistry(nil)
	store := newMemoryStore()
	router := NewRouter(registry, store, nil, Options{ChatRatePerMinute: 2}, nil)
	ctx := context.Background()

	teacher := setupTestConnection(t, registry, "teach", types.RoleTeacher, "room-1")
	student := setupTestConnection(t, registry, "stu", types.RoleStudent, "room-1")

	if err := router.RouteEvent(ctx, student.conn, types.ChatEvent("why is the sky blue?")); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	for _, m := range []*member{teacher, student} {
		ev := m.next(t)
		if ev.Type != types.EventMessage || ev.Username != "stu" || ev.UserType != types.RoleStudent || ev.Message != "why is the sky blue?" {
			t.Errorf("%s got %+v", m.conn.GetUsername(), ev)
		}
	}
	if len(store.messages) != 1 || store.messages[0].RoomID != "room-1" || store.messages[0].ID == "" {
		t.Errorf("Stored = %+v", store.messages)
	}

	if err := router.RouteEvent(ctx, student.conn, types.ChatEvent("   ")); !errors.Is(err, types.ErrEmptyMessage) {
		t.Errorf("Blank chat: expected ErrEmptyMessage, got %v", err)
	}
	if err := router.RouteEvent(ctx, student.conn, types.ChatEvent("second")); err != nil {
		t.Fatalf("Second chat failed: %v", err)
	}
	if err := router.RouteEvent(ctx, student.conn, types.ChatEvent("third")); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("Expected ErrRateLimitExceeded, got %v", err)
	}
}

// TestRouter_AudioRouting tests functional validation - audio frames go to students only, start and stop to everyone
func TestRouter_AudioRouting(t *testing.T) {
	registry := websocket.NewRegistry(nil)
	router := NewRouter(registry, nil, nil, Options{}, nil)
	ctx := context.Background()

	teacher := setupTestConnection(t, registry, "teach", types.RoleTeacher, "room-1")
	student := setupTestConnection(t, registry, "stu", types.RoleStudent, "room-1")

	for _, ev := range []types.Event{
		{Type: types.EventAudioStart},
		types.AudioDataEvent("AAAAQA=="),
		{Type: types.EventAudioStop},
	} {
		if err := router.RouteEvent(ctx, teacher.conn, ev); err != nil {
			t.Fatalf("RouteEvent %s failed: %v", ev.Type, err)
		}
	}

	got := student.until(t, types.EventAudioStop)
	if len(got) != 3 || got[0].Username != "teach" || got[1].Data != "AAAAQA==" {
		t.Errorf("Student frames = %+v", got)
	}
	teacherGot := teacher.until(t, types.EventAudioStop)
	for _, ev := range teacherGot {
		if ev.Type == types.EventAudioData {
			t.Error("Teacher must not receive its own audio")
		}
	}
}

// TestRouter_LeaveUnloadsRoom tests functional validation - an empty room is reloaded from the board store
func TestRouter_LeaveUnloadsRoom(t *testing.T) {
	registry := websocket.NewRegistry(nil)
	store := newMemoryStore()
	router := NewRouter(registry, nil, store, Options{MaxActions: 3}, nil)
	ctx := context.Background()

	teacher := setupTestConnection(t, registry, "teach", types.RoleTeacher, "room-1")
	for i := 0; i < 5; i++ {
		if err := router.RouteEvent(ctx, teacher.conn, types.ActionEvent(stroke(float64(i)/10))); err != nil {
			t.Fatalf("RouteEvent failed: %v", err)
		}
	}
	if n := len(router.Snapshot(ctx, "room-1")); n != 3 {
		t.Errorf("Board kept %d actions, want the cap of 3", n)
	}

	registry.UnregisterConnection(teacher.conn)
	router.Leave(ctx, teacher.conn)
	if _, loaded := router.rooms["room-1"]; loaded {
		t.Error("Empty room should be unloaded")
	}

	store.boards["room-1"] = []types.Action{stroke(0.9)}
	if got := router.Snapshot(ctx, "room-1"); len(got) != 1 {
		t.Errorf("Reloaded board = %+v", got)
	}
}

// TestRouter_CapResyncsRoom tests functional validation - an append past the cap sends the trimmed log to everyone
func TestRouter_CapResyncsRoom(t *testing.T) {
	registry := websocket.NewRegistry(nil)
	router := NewRouter(registry, nil, nil, Options{MaxActions: 2}, nil)
	ctx := context.Background()

	teacher := setupTestConnection(t, registry, "teach", types.RoleTeacher, "room-1")
	student := setupTestConnection(t, registry, "stu", types.RoleStudent, "room-1")
	for i := 1; i <= 3; i++ {
		if err := router.RouteEvent(ctx, teacher.conn, types.ActionEvent(stroke(float64(i)/10))); err != nil {
			t.Fatalf("RouteEvent failed: %v", err)
		}
	}

	for _, m := range []*member{teacher, student} {
		for i := 0; i < 2; i++ {
			if ev := m.next(t); ev.Type != types.EventDraw {
				t.Fatalf("%s event %d = %s, want draw", m.conn.GetUsername(), i, ev.Type)
			}
		}
		ev := m.next(t)
		if ev.Type != types.EventWhiteboardState || len(ev.Actions) != 2 {
			t.Fatalf("%s: expected a two-action resync, got %+v", m.conn.GetUsername(), ev)
		}
		first := ev.Actions[0].(types.DrawAction)
		if first.Points[0][1] != 0.2 {
			t.Errorf("%s: oldest action not dropped, first = %+v", m.conn.GetUsername(), first)
		}
	}
}

func TestRouter_SenderWithoutRoom(t *testing.T) {
	registry := websocket.NewRegistry(nil)
	router := NewRouter(registry, nil, nil, Options{}, nil)
	m := setupTestConnection(t, registry, "teach", types.RoleTeacher, "")

	if err := router.RouteEvent(context.Background(), m.conn, types.Event{Type: types.EventUndo}); !errors.Is(err, ErrSenderNotInRoom) {
		t.Errorf("RouteEvent: expected ErrSenderNotInRoom, got %v", err)
	}
	if err := router.Join(context.Background(), m.conn); !errors.Is(err, ErrSenderNotInRoom) {
		t.Errorf("Join: expected ErrSenderNotInRoom, got %v", err)
	}
}
