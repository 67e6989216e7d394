package websocket

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"liveclass/pkg/types"
)

// Registry tracks live relay connections by user and by room. A user holds
// at most one connection; registering again replaces and closes the old one.
type Registry struct {
	mu           sync.RWMutex
	users        map[string]*Connection            // username -> Connection
	roomTeachers map[string]map[string]*Connection // roomID -> username -> Connection
	roomStudents map[string]map[string]*Connection // roomID -> username -> Connection
	logger       *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		users:        make(map[string]*Connection),
		roomTeachers: make(map[string]map[string]*Connection),
		roomStudents: make(map[string]map[string]*Connection),
		logger:       logger.Named("registry"),
	}
}

// RegisterConnection adds conn under its credentials. A previous connection
// of the same user is removed from its room and closed asynchronously.
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}

	username := conn.GetUsername()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.users[username]; ok && existing != conn {
		r.removeLocked(existing)
		go func() {
			if err := existing.Close(); err != nil {
				r.logger.Warn("failed to close replaced connection",
					zap.String("user", username), zap.Error(err))
			}
		}()
	}

	r.users[username] = conn
	rooms := r.roleMap(conn.GetRole())
	roomID := conn.GetRoomID()
	if rooms[roomID] == nil {
		rooms[roomID] = make(map[string]*Connection)
	}
	rooms[roomID][username] = conn
	return nil
}

// UnregisterConnection removes conn if it is still the registered
// connection of its user. It reports whether anything was removed, so a
// replaced connection's late cleanup does not evict its successor.
func (r *Registry) UnregisterConnection(conn *Connection) bool {
	if conn == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, ok := r.users[conn.GetUsername()]; !ok || registered != conn {
		return false
	}
	r.removeLocked(conn)
	return true
}

func (r *Registry) removeLocked(conn *Connection) {
	username := conn.GetUsername()
	roomID := conn.GetRoomID()
	delete(r.users, username)

	rooms := r.roleMap(conn.GetRole())
	if members, ok := rooms[roomID]; ok {
		delete(members, username)
		if len(members) == 0 {
			delete(rooms, roomID)
		}
	}
}

func (r *Registry) roleMap(role types.Role) map[string]map[string]*Connection {
	if role == types.RoleTeacher {
		return r.roomTeachers
	}
	return r.roomStudents
}

func (r *Registry) GetUserConnection(username string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.users[username]
	return conn, ok
}

// GetRoomConnections returns every connection in a room, teachers first,
// each group ordered by username.
func (r *Registry) GetRoomConnections(roomID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(sortedMembers(r.roomTeachers[roomID]), sortedMembers(r.roomStudents[roomID])...)
}

func (r *Registry) GetRoomTeachers(roomID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedMembers(r.roomTeachers[roomID])
}

func (r *Registry) GetRoomStudents(roomID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedMembers(r.roomStudents[roomID])
}

// RoomUsernames lists who is connected to a room.
func (r *Registry) RoomUsernames(roomID string) []string {
	conns := r.GetRoomConnections(roomID)
	names := make([]string, len(conns))
	for i, c := range conns {
		names[i] = c.GetUsername()
	}
	return names
}

func sortedMembers(members map[string]*Connection) []*Connection {
	if len(members) == 0 {
		return nil
	}
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Connection, len(names))
	for i, name := range names {
		out[i] = members[name]
	}
	return out
}

// GetStats reports totals for the health endpoint.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make(map[string]bool)
	for id := range r.roomTeachers {
		rooms[id] = true
	}
	for id := range r.roomStudents {
		rooms[id] = true
	}
	return map[string]int{
		"total_connections": len(r.users),
		"active_rooms":      len(rooms),
	}
}
