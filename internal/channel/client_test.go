package channel

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"liveclass/pkg/types"
)

// fakeRelay sends the board on connect and echoes whiteboard actions to
// the sender, like the real relay does for a single participant.
type fakeRelay struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	actions  []types.Action
	conns    []*websocket.Conn
	connects int
	paths    []string
}

func (r *fakeRelay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.URL.Query().Get("token") != "tok" {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	r.mu.Lock()
	r.conns = append(r.conns, conn)
	r.connects++
	r.paths = append(r.paths, req.URL.Path)
	state := types.StateEvent(types.CloneActions(r.actions))
	r.mu.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"cursor","x":1}`)); err != nil {
		return
	}
	if err := conn.WriteJSON(state); err != nil {
		return
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		ev, err := types.DecodeEvent(data)
		if err != nil || ev.Action == nil {
			continue
		}
		r.mu.Lock()
		r.actions = append(r.actions, ev.Action)
		r.mu.Unlock()
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// dropAll cuts every live connection without a close handshake, after
// trimming the board to keep actions.
func (r *fakeRelay) dropAll(keep int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if keep < len(r.actions) {
		r.actions = r.actions[:keep]
	}
	for _, c := range r.conns {
		_ = c.UnderlyingConn().Close()
	}
	r.conns = nil
}

func (r *fakeRelay) stats() (int, int, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects, len(r.actions), append([]string(nil), r.paths...)
}

type harness struct {
	t      *testing.T
	sigs   chan Signal
	client *Client
	states []types.ConnectionState
	events []types.Event
}

func newHarness(t *testing.T, relay, room string, retry time.Duration) *harness {
	t.Helper()
	h := &harness{t: t, sigs: make(chan Signal, 256)}
	c, err := NewClient(relay, room, "tok", func(s Signal) { h.sigs <- s }, Options{
		RetryDelay: retry,
		OnState:    func(s types.ConnectionState) { h.states = append(h.states, s) },
	}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	h.client = c
	t.Cleanup(c.Close)
	return h
}

// waitFor runs the owner loop until cond holds.
func (h *harness) waitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case sig := <-h.sigs:
			if ev, ok := h.client.Handle(sig); ok {
				h.events = append(h.events, ev)
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s (state %s)", what, h.client.State())
		}
	}
}

func (h *harness) count(t types.EventType) int {
	n := 0
	for _, ev := range h.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (h *harness) sawState(s types.ConnectionState) bool {
	for _, st := range h.states {
		if st == s {
			return true
		}
	}
	return false
}

// TestClient_ReconnectResync tests functional validation - a dropped channel reconnects and the state frame replaces the board
func TestClient_ReconnectResync(t *testing.T) {
	relay := &fakeRelay{}
	srv := httptest.NewServer(relay)
	defer srv.Close()

	h := newHarness(t, srv.URL, "Physics Lab", 20*time.Millisecond)
	if err := h.client.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	h.waitFor("first state", func() bool { return h.count(types.EventWhiteboardState) == 1 })
	if h.client.State() != types.StateOpen {
		t.Fatalf("state = %s, want open", h.client.State())
	}

	for i := 0; i < 5; i++ {
		a := types.DrawAction{Points: []types.Point{{0.1, 0.1}, {0.2, float64(i) / 10}}, Color: "#000000", Width: 2}
		if err := h.client.Send(types.ActionEvent(a)); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}
	h.waitFor("echoes", func() bool { return h.count(types.EventDraw) == 5 })

	relay.dropAll(3)
	h.waitFor("resync", func() bool { return h.count(types.EventWhiteboardState) == 2 })

	last := h.events[len(h.events)-1]
	if last.Type != types.EventWhiteboardState || len(last.Actions) != 3 {
		t.Errorf("last event = %s with %d actions, want whiteboard_state with 3", last.Type, len(last.Actions))
	}
	if !h.sawState(types.StateClosedWillRetry) {
		t.Errorf("states %v never passed through closed-will-retry", h.states)
	}
	if h.count("cursor") != 0 {
		t.Error("unknown event types must be ignored")
	}

	connects, _, paths := relay.stats()
	if connects != 2 {
		t.Errorf("connects = %d, want 2", connects)
	}
	if paths[0] != "/ws/chat/Physics_Lab/" {
		t.Errorf("path = %q", paths[0])
	}

	h.client.Close()
	if h.client.State() != types.StateClosedFinal {
		t.Errorf("state after Close = %s", h.client.State())
	}
	if err := h.client.Send(types.ChatEvent("late")); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send after Close = %v, want ErrNotOpen", err)
	}
	if err := h.client.Open(); !errors.Is(err, ErrClosed) {
		t.Errorf("Open after Close = %v, want ErrClosed", err)
	}
}

// TestClient_SendBeforeOpen tests functional validation - events sent while not open are dropped
func TestClient_SendBeforeOpen(t *testing.T) {
	h := newHarness(t, "ws://127.0.0.1:1", "Room", time.Hour)
	if err := h.client.Send(types.ChatEvent("hi")); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send = %v, want ErrNotOpen", err)
	}
}

// TestClient_RetryAfterDialFailure tests functional validation - failed dials keep retrying until closed
func TestClient_RetryAfterDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	h := newHarness(t, addr, "Room", 10*time.Millisecond)
	if err := h.client.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	connecting := func() int {
		n := 0
		for _, s := range h.states {
			if s == types.StateConnecting {
				n++
			}
		}
		return n
	}
	h.waitFor("second attempt", func() bool { return connecting() >= 2 })
	if !h.sawState(types.StateClosedWillRetry) {
		t.Errorf("states = %v", h.states)
	}

	h.client.Close()
	stop := time.After(50 * time.Millisecond)
	for done := false; !done; {
		select {
		case sig := <-h.sigs:
			h.client.Handle(sig)
		case <-stop:
			done = true
		}
	}
	if h.client.State() != types.StateClosedFinal {
		t.Errorf("late signals reopened the client: state %s", h.client.State())
	}
}

// TestClient_RejectedToken tests functional validation - a refused handshake is treated as a retryable close
func TestClient_RejectedToken(t *testing.T) {
	srv := httptest.NewServer(&fakeRelay{})
	defer srv.Close()

	h := newHarness(t, srv.URL, "Room", time.Hour)
	h.client.url = h.client.url[:len(h.client.url)-len("tok")] + "bad"
	if err := h.client.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	h.waitFor("retry state", func() bool { return h.client.State() == types.StateClosedWillRetry })
}

func TestChannelURL(t *testing.T) {
	tests := []struct {
		relay   string
		room    string
		want    string
		wantErr bool
	}{
		{"ws://localhost:8000", "Physics Lab", "ws://localhost:8000/ws/chat/Physics_Lab/?token=t", false},
		{"http://localhost:8000/", "a-b", "ws://localhost:8000/ws/chat/a_b/?token=t", false},
		{"https://relay.example.com/base", "Math", "wss://relay.example.com/base/ws/chat/Math/?token=t", false},
		{"ftp://host", "Math", "", true},
		{"ws://", "Math", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.relay, func(t *testing.T) {
			got, err := ChannelURL(tt.relay, tt.room, "t")
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTarget) {
					t.Errorf("err = %v, want ErrInvalidTarget", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ChannelURL failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
