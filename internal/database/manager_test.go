package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"liveclass/pkg/database"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

func setupTestDB(t *testing.T) *Manager {
	t.Helper()
	config := database.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	manager, err := NewManager(config, nil)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	if err := manager.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return manager
}

func createUser(t *testing.T, m *Manager, name string, role types.Role) *types.User {
	t.Helper()
	user := &types.User{
		ID:       uuid.NewString(),
		Username: name,
		UserType: role,
		Token:    uuid.NewString(),
	}
	if err := m.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", name, err)
	}
	return user
}

func createRoom(t *testing.T, m *Manager, name string, participants ...string) *types.Room {
	t.Helper()
	room := &types.Room{ID: uuid.NewString(), Name: name, Participants: participants}
	if err := m.CreateRoom(context.Background(), room); err != nil {
		t.Fatalf("CreateRoom(%s) failed: %v", name, err)
	}
	return room
}

// TestManager_Interface tests architectural validation - Manager satisfies the persistence contract
func TestManager_Interface(t *testing.T) {
	var _ interfaces.DatabaseManager = (*Manager)(nil)
}

// TestManager_Users tests functional validation - account creation and token lookup
func TestManager_Users(t *testing.T) {
	m := setupTestDB(t)
	ctx := context.Background()

	alice := createUser(t, m, "alice", types.RoleTeacher)

	got, err := m.GetUserByToken(ctx, alice.Token)
	if err != nil {
		t.Fatalf("GetUserByToken failed: %v", err)
	}
	if got.Username != "alice" || got.UserType != types.RoleTeacher {
		t.Errorf("unexpected user %+v", got)
	}
	if got.Token != "" {
		t.Error("lookups must not return the token")
	}

	if _, err := m.GetUserByName(ctx, "alice"); err != nil {
		t.Errorf("GetUserByName failed: %v", err)
	}

	tests := []struct {
		name  string
		query func() error
		want  error
	}{
		{"unknown token", func() error { _, err := m.GetUserByToken(ctx, "nope"); return err }, interfaces.ErrUserNotFound},
		{"empty token", func() error { _, err := m.GetUserByToken(ctx, ""); return err }, interfaces.ErrUserNotFound},
		{"unknown name", func() error { _, err := m.GetUserByName(ctx, "bob"); return err }, interfaces.ErrUserNotFound},
		{"duplicate username", func() error {
			return m.CreateUser(ctx, &types.User{ID: uuid.NewString(), Username: "alice", UserType: types.RoleStudent, Token: uuid.NewString()})
		}, interfaces.ErrUserExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.query(); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

// TestManager_CreateRoom tests functional validation - unknown participants are skipped
func TestManager_CreateRoom(t *testing.T) {
	m := setupTestDB(t)
	ctx := context.Background()

	createUser(t, m, "teach", types.RoleTeacher)
	createUser(t, m, "stu", types.RoleStudent)

	room := createRoom(t, m, "Algebra 1", "teach", "stu", "ghost", "stu")

	want := []string{"teach", "stu"}
	if fmt.Sprint(room.Participants) != fmt.Sprint(want) {
		t.Errorf("participants = %v, want %v", room.Participants, want)
	}

	got, err := m.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if got.Name != "Algebra 1" || len(got.Participants) != 2 {
		t.Errorf("unexpected room %+v", got)
	}
	if !got.HasParticipant("stu") || got.HasParticipant("ghost") {
		t.Errorf("membership wrong: %v", got.Participants)
	}

	if _, err := m.GetRoom(ctx, "missing"); !errors.Is(err, interfaces.ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}

// TestManager_FindRoomByChannelName tests functional validation - every channel name spelling resolves
func TestManager_FindRoomByChannelName(t *testing.T) {
	m := setupTestDB(t)
	ctx := context.Background()
	createUser(t, m, "teach", types.RoleTeacher)

	spaced := createRoom(t, m, "Physics Lab", "teach")
	punct := createRoom(t, m, "Bio-101!", "teach")
	plain := createRoom(t, m, "chem", "teach")

	tests := []struct {
		channel string
		wantID  string
	}{
		{"chem", plain.ID},
		{"Physics_Lab", spaced.ID},
		{"Physics Lab", spaced.ID},
		{"Bio_101_", punct.ID},
	}
	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			room, err := m.FindRoomByChannelName(ctx, tt.channel)
			if err != nil {
				t.Fatalf("FindRoomByChannelName(%q) failed: %v", tt.channel, err)
			}
			if room.ID != tt.wantID {
				t.Errorf("resolved %q to %s, want %s", tt.channel, room.Name, tt.wantID)
			}
		})
	}

	if _, err := m.FindRoomByChannelName(ctx, "nowhere"); !errors.Is(err, interfaces.ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}

// TestManager_AddParticipant tests functional validation - joining is idempotent
func TestManager_AddParticipant(t *testing.T) {
	m := setupTestDB(t)
	ctx := context.Background()
	createUser(t, m, "teach", types.RoleTeacher)
	createUser(t, m, "stu", types.RoleStudent)
	room := createRoom(t, m, "room", "teach")

	for i := 0; i < 3; i++ {
		if err := m.AddParticipant(ctx, room.ID, "stu"); err != nil {
			t.Fatalf("AddParticipant failed: %v", err)
		}
	}
	if err := m.AddParticipant(ctx, room.ID, "ghost"); err != nil {
		t.Errorf("unknown user should be ignored, got %v", err)
	}

	got, err := m.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if len(got.Participants) != 2 {
		t.Errorf("participants = %v, want [teach stu]", got.Participants)
	}

	if err := m.AddParticipant(ctx, "missing", "stu"); !errors.Is(err, interfaces.ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}

// TestManager_Messages tests functional validation - recent history is the newest N in chronological order
func TestManager_Messages(t *testing.T) {
	m := setupTestDB(t)
	ctx := context.Background()
	createUser(t, m, "teach", types.RoleTeacher)
	room := createRoom(t, m, "room", "teach")

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		msg := &types.ChatMessage{
			ID:         uuid.NewString(),
			RoomID:     room.ID,
			SenderName: "teach",
			UserType:   types.RoleTeacher,
			Content:    fmt.Sprintf("msg-%d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		if err := m.StoreMessage(ctx, msg); err != nil {
			t.Fatalf("StoreMessage failed: %v", err)
		}
	}

	msgs, err := m.GetRecentMessages(ctx, room.ID, 3)
	if err != nil {
		t.Fatalf("GetRecentMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, want := range []string{"msg-2", "msg-3", "msg-4"} {
		if msgs[i].Content != want {
			t.Errorf("msgs[%d] = %s, want %s", i, msgs[i].Content, want)
		}
	}
	if !msgs[0].FromTeacher() || !msgs[0].CreatedAt.Equal(base.Add(2*time.Second)) {
		t.Errorf("message fields not round-tripped: %+v", msgs[0])
	}

	empty, err := m.GetRecentMessages(ctx, "missing", 10)
	if err != nil || len(empty) != 0 {
		t.Errorf("unknown room should have no history, got %v, %v", empty, err)
	}

	err = m.StoreMessage(ctx, &types.ChatMessage{ID: uuid.NewString(), RoomID: "missing", SenderName: "x", UserType: types.RoleStudent, Content: "hi"})
	if !errors.Is(err, interfaces.ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound for orphan message, got %v", err)
	}
}

// TestManager_ListRoomsOrder tests functional validation - the most recently active room is listed first
func TestManager_ListRoomsOrder(t *testing.T) {
	m := setupTestDB(t)
	ctx := context.Background()
	createUser(t, m, "teach", types.RoleTeacher)

	first := createRoom(t, m, "first", "teach")
	time.Sleep(5 * time.Millisecond)
	second := createRoom(t, m, "second", "teach")

	rooms, err := m.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms failed: %v", err)
	}
	if len(rooms) != 2 || rooms[0].ID != second.ID {
		t.Fatalf("expected newest room first, got %v", rooms)
	}

	time.Sleep(5 * time.Millisecond)
	if err := m.StoreMessage(ctx, &types.ChatMessage{
		ID: uuid.NewString(), RoomID: first.ID, SenderName: "teach", UserType: types.RoleTeacher, Content: "bump",
	}); err != nil {
		t.Fatalf("StoreMessage failed: %v", err)
	}

	rooms, err = m.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms failed: %v", err)
	}
	if rooms[0].ID != first.ID {
		t.Errorf("chat activity should move room to the top, got %s", rooms[0].Name)
	}
	if len(rooms[0].Participants) != 1 || rooms[0].Participants[0] != "teach" {
		t.Errorf("participants not attached: %v", rooms[0].Participants)
	}
}

// TestManager_Board tests functional validation - whiteboard log persistence
func TestManager_Board(t *testing.T) {
	m := setupTestDB(t)
	ctx := context.Background()
	createUser(t, m, "teach", types.RoleTeacher)
	room := createRoom(t, m, "room", "teach")

	actions, err := m.LoadBoard(ctx, room.ID)
	if err != nil || len(actions) != 0 {
		t.Fatalf("new room board = %v, %v", actions, err)
	}

	want := []types.Action{
		types.DrawAction{Points: []types.Point{{0.1, 0.1}, {0.2, 0.2}}, Color: "#000000", Width: 3},
		types.TextAction{X: 0.5, Y: 0.5, Content: "hi", FontSize: 24, Color: "#ff0000"},
	}
	if err := m.SaveBoard(ctx, room.ID, want); err != nil {
		t.Fatalf("SaveBoard failed: %v", err)
	}

	got, err := m.LoadBoard(ctx, room.ID)
	if err != nil {
		t.Fatalf("LoadBoard failed: %v", err)
	}
	if len(got) != 2 || got[1].(types.TextAction).Content != "hi" {
		t.Errorf("board not round-tripped: %#v", got)
	}

	if err := m.SaveBoard(ctx, "missing", want); !errors.Is(err, interfaces.ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
	if missing, err := m.LoadBoard(ctx, "missing"); err != nil || len(missing) != 0 {
		t.Errorf("unknown room board = %v, %v", missing, err)
	}
}

// TestManager_ConcurrentWrites tests technical validation - the single writer serializes concurrent callers
func TestManager_ConcurrentWrites(t *testing.T) {
	m := setupTestDB(t)
	ctx := context.Background()
	createUser(t, m, "teach", types.RoleTeacher)
	room := createRoom(t, m, "room", "teach")

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- m.StoreMessage(ctx, &types.ChatMessage{
				ID: uuid.NewString(), RoomID: room.ID, SenderName: "teach",
				UserType: types.RoleTeacher, Content: fmt.Sprintf("m%d", i),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent StoreMessage failed: %v", err)
		}
	}

	msgs, err := m.GetRecentMessages(ctx, room.ID, 100)
	if err != nil {
		t.Fatalf("GetRecentMessages failed: %v", err)
	}
	if len(msgs) != 50 {
		t.Errorf("got %d messages, want 50", len(msgs))
	}
}

// TestManager_Close tests technical validation - writes after close fail cleanly
func TestManager_Close(t *testing.T) {
	m := setupTestDB(t)

	if err := m.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	err := m.CreateUser(context.Background(), &types.User{ID: "x", Username: "x", UserType: types.RoleStudent, Token: "x"})
	if !errors.Is(err, ErrManagerClosed) {
		t.Errorf("expected ErrManagerClosed, got %v", err)
	}
}
