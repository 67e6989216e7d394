package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	dbconfig "liveclass/pkg/database"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("write operation timeout")
)

const (
	writeQueueSize    = 100
	writeQueueTimeout = 30 * time.Second
	writeRetryDelay   = 500 * time.Millisecond
)

// Manager implements interfaces.DatabaseManager on SQLite. Reads run
// concurrently on the pool; every write goes through one goroutine.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	logger       *zap.Logger
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database. Call Migrate before use.
func NewManager(config *dbconfig.Config, logger *zap.Logger) (*Manager, error) {
	if config == nil {
		config = dbconfig.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	m := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, writeQueueSize),
		shutdown:     make(chan struct{}),
		logger:       logger.With(zap.String("component", "database")),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

// Migrate applies the embedded schema migrations and validates the result.
func (m *Manager) Migrate() error {
	if err := dbconfig.NewMigrationManager(m.db).ApplyMigrations(); err != nil {
		return err
	}
	return dbconfig.NewSchemaValidator(m.db).Validate()
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if isTransient(err) {
				m.logger.Warn("database write busy, retrying", zap.Error(err))
				time.Sleep(writeRetryDelay)
				err = op.operation(m.db)
			}
			if err != nil && !isConstraint(err) {
				m.logger.Error("database write failed", zap.Error(err))
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

// executeWrite queues operation on the writer goroutine and waits for it.
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrManagerClosed
	}

	result := make(chan error, 1)
	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-time.After(writeQueueTimeout):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

func isTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// CreateUser stores a new account. A taken username yields ErrUserExists.
func (m *Manager) CreateUser(ctx context.Context, user *types.User) error {
	if user.Created.IsZero() {
		user.Created = time.Now().UTC()
	}
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO users (id, username, user_type, token, created_at) VALUES (?, ?, ?, ?, ?)`,
			user.ID, user.Username, string(user.UserType), user.Token, user.Created.UTC(),
		)
		if err != nil {
			if isUniqueViolation(err) && strings.Contains(err.Error(), "users.username") {
				return interfaces.ErrUserExists
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

func (m *Manager) GetUserByToken(ctx context.Context, token string) (*types.User, error) {
	if token == "" {
		return nil, interfaces.ErrUserNotFound
	}
	return m.getUser(ctx, "token", token)
}

func (m *Manager) GetUserByName(ctx context.Context, username string) (*types.User, error) {
	return m.getUser(ctx, "username", username)
}

// getUser never returns the token; it is only handed out at registration.
func (m *Manager) getUser(ctx context.Context, column, value string) (*types.User, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT id, username, user_type, created_at FROM users WHERE `+column+` = ?`, value)

	var (
		user     types.User
		userType string
	)
	if err := row.Scan(&user.ID, &user.Username, &userType, &user.Created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	user.UserType = types.Role(userType)
	return &user, nil
}

// CreateRoom stores the room and its participants in one transaction.
// Participants without an account are skipped.
func (m *Manager) CreateRoom(ctx context.Context, room *types.Room) error {
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = room.CreatedAt

	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO rooms (id, name, channel_name, whiteboard_data, created_at, updated_at)
			 VALUES (?, ?, ?, '[]', ?, ?)`,
			room.ID, room.Name, types.ChannelName(room.Name), room.CreatedAt.UTC(), room.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert room: %w", err)
		}

		for _, username := range room.Participants {
			if err := insertParticipant(ctx, tx, room.ID, username, now); err != nil {
				return err
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit room creation: %w", err)
		}

		participants, err := m.participants(ctx, room.ID)
		if err != nil {
			return err
		}
		room.Participants = participants
		return nil
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertParticipant(ctx context.Context, ex execer, roomID, username string, at time.Time) error {
	_, err := ex.ExecContext(ctx,
		`INSERT OR IGNORE INTO room_participants (room_id, username, joined_at)
		 SELECT ?, username, ? FROM users WHERE username = ?`,
		roomID, at.UTC(), username,
	)
	if err != nil {
		return fmt.Errorf("failed to add participant %s: %w", username, err)
	}
	return nil
}

func (m *Manager) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	return m.getRoom(ctx, `SELECT id, name, created_at, updated_at FROM rooms WHERE id = ?`, roomID)
}

// FindRoomByChannelName tries the exact name, then the name with
// underscores read as spaces, then the sanitized channel name.
func (m *Manager) FindRoomByChannelName(ctx context.Context, channelName string) (*types.Room, error) {
	queries := []struct {
		query string
		arg   string
	}{
		{`SELECT id, name, created_at, updated_at FROM rooms WHERE name = ? ORDER BY created_at LIMIT 1`, channelName},
		{`SELECT id, name, created_at, updated_at FROM rooms WHERE name = ? ORDER BY created_at LIMIT 1`, strings.ReplaceAll(channelName, "_", " ")},
		{`SELECT id, name, created_at, updated_at FROM rooms WHERE channel_name = ? ORDER BY created_at LIMIT 1`, channelName},
	}
	for _, q := range queries {
		room, err := m.getRoom(ctx, q.query, q.arg)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, interfaces.ErrRoomNotFound) {
			return nil, err
		}
	}
	return nil, interfaces.ErrRoomNotFound
}

func (m *Manager) getRoom(ctx context.Context, query string, arg string) (*types.Room, error) {
	var room types.Room
	err := m.db.QueryRowContext(ctx, query, arg).Scan(&room.ID, &room.Name, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to query room: %w", err)
	}

	room.Participants, err = m.participants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (m *Manager) participants(ctx context.Context, roomID string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT username FROM room_participants WHERE room_id = ? ORDER BY joined_at, rowid`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListRooms returns every room, most recently active first.
func (m *Manager) ListRooms(ctx context.Context) ([]*types.Room, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM rooms ORDER BY updated_at DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}

	rooms := []*types.Room{}
	byID := make(map[string]*types.Room)
	for rows.Next() {
		var room types.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt, &room.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan room row: %w", err)
		}
		room.Participants = []string{}
		rooms = append(rooms, &room)
		byID[room.ID] = &room
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating room rows: %w", err)
	}
	_ = rows.Close()

	prows, err := m.db.QueryContext(ctx,
		`SELECT room_id, username FROM room_participants ORDER BY joined_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer func() { _ = prows.Close() }()

	for prows.Next() {
		var roomID, username string
		if err := prows.Scan(&roomID, &username); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		if room, ok := byID[roomID]; ok {
			room.Participants = append(room.Participants, username)
		}
	}
	return rooms, prows.Err()
}

// AddParticipant is idempotent and ignores unknown users.
func (m *Manager) AddParticipant(ctx context.Context, roomID, username string) error {
	if _, err := m.GetRoom(ctx, roomID); err != nil {
		return err
	}
	return m.executeWrite(ctx, func(db *sql.DB) error {
		return insertParticipant(ctx, db, roomID, username, time.Now().UTC())
	})
}

// StoreMessage persists a chat message and marks the room active.
func (m *Manager) StoreMessage(ctx context.Context, message *types.ChatMessage) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO chat_messages (id, room_id, sender_name, user_type, content, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			message.ID, message.RoomID, message.SenderName, string(message.UserType),
			message.Content, message.CreatedAt.UTC(),
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return interfaces.ErrRoomNotFound
			}
			return fmt.Errorf("failed to insert message: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE rooms SET updated_at = ? WHERE id = ?`,
			message.CreatedAt.UTC(), message.RoomID); err != nil {
			return fmt.Errorf("failed to touch room: %w", err)
		}
		return tx.Commit()
	})
}

// GetRecentMessages returns the last limit messages, oldest first.
func (m *Manager) GetRecentMessages(ctx context.Context, roomID string, limit int) ([]*types.ChatMessage, error) {
	if limit <= 0 {
		return []*types.ChatMessage{}, nil
	}
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, room_id, sender_name, user_type, content, created_at
		 FROM chat_messages WHERE room_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		roomID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []*types.ChatMessage{}
	for rows.Next() {
		var (
			msg      types.ChatMessage
			userType string
		)
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderName, &userType, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.UserType = types.Role(userType)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// LoadBoard returns the persisted whiteboard log, or an empty log for an
// unknown room.
func (m *Manager) LoadBoard(ctx context.Context, roomID string) ([]types.Action, error) {
	var data string
	err := m.db.QueryRowContext(ctx, `SELECT whiteboard_data FROM rooms WHERE id = ?`, roomID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []types.Action{}, nil
		}
		return nil, fmt.Errorf("failed to query whiteboard: %w", err)
	}
	if data == "" {
		return []types.Action{}, nil
	}
	return types.UnmarshalActions([]byte(data))
}

// SaveBoard replaces the persisted whiteboard log.
func (m *Manager) SaveBoard(ctx context.Context, roomID string, actions []types.Action) error {
	data, err := types.MarshalActions(actions)
	if err != nil {
		return fmt.Errorf("failed to encode whiteboard: %w", err)
	}
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE rooms SET whiteboard_data = ?, updated_at = ? WHERE id = ?`,
			string(data), time.Now().UTC(), roomID)
		if err != nil {
			return fmt.Errorf("failed to save whiteboard: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return interfaces.ErrRoomNotFound
		}
		return nil
	})
}

// HealthCheck validates connectivity and that the schema is readable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB exposes the pool for migrations and tests.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
