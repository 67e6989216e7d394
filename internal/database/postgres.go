package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Table models for the PostgreSQL backend. Table and column names match
// the SQLite schema so both backends can be inspected the same way.
type userRecord struct {
	ID        string    `gorm:"primaryKey;type:text"`
	Username  string    `gorm:"type:text;not null;uniqueIndex"`
	UserType  string    `gorm:"type:text;not null;check:user_type IN ('teacher','student')"`
	Token     string    `gorm:"type:text;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"not null"`
}

func (userRecord) TableName() string { return "users" }

type roomRecord struct {
	ID             string    `gorm:"primaryKey;type:text"`
	Name           string    `gorm:"type:text;not null;index:idx_rooms_name"`
	ChannelName    string    `gorm:"type:text;not null;index:idx_rooms_channel_name"`
	WhiteboardData string    `gorm:"type:text;not null;default:'[]'"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null;index:idx_rooms_updated_at"`
}

func (roomRecord) TableName() string { return "rooms" }

type participantRecord struct {
	RoomID   string    `gorm:"primaryKey;type:text"`
	Username string    `gorm:"primaryKey;type:text"`
	JoinedAt time.Time `gorm:"not null"`
}

func (participantRecord) TableName() string { return "room_participants" }

type chatMessageRecord struct {
	ID         string    `gorm:"primaryKey;type:text"`
	RoomID     string    `gorm:"type:text;not null;index:idx_chat_messages_room_time,priority:1"`
	SenderName string    `gorm:"type:text;not null"`
	UserType   string    `gorm:"type:text;not null;check:chat_user_type,user_type IN ('teacher','student')"`
	Content    string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"not null;index:idx_chat_messages_room_time,priority:2"`
}

func (chatMessageRecord) TableName() string { return "chat_messages" }

// PostgresManager implements interfaces.DatabaseManager with GORM on
// PostgreSQL, for deployments that run several relays against one
// database.
type PostgresManager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPostgresManager connects using a libpq style DSN. Call Migrate before use.
func NewPostgresManager(dsn string, log *zap.Logger) (*PostgresManager, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn cannot be empty")
	}
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &PostgresManager{db: db, logger: log.With(zap.String("component", "postgres"))}, nil
}

// Migrate creates or updates the tables.
func (p *PostgresManager) Migrate() error {
	if err := p.db.AutoMigrate(&userRecord{}, &roomRecord{}, &participantRecord{}, &chatMessageRecord{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	p.logger.Info("database migration completed")
	return nil
}

func (p *PostgresManager) CreateUser(ctx context.Context, user *types.User) error {
	if user.Created.IsZero() {
		user.Created = time.Now().UTC()
	}
	rec := userRecord{
		ID:        user.ID,
		Username:  user.Username,
		UserType:  string(user.UserType),
		Token:     user.Token,
		CreatedAt: user.Created,
	}
	if err := p.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return interfaces.ErrUserExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (p *PostgresManager) GetUserByToken(ctx context.Context, token string) (*types.User, error) {
	if token == "" {
		return nil, interfaces.ErrUserNotFound
	}
	return p.getUser(ctx, "token = ?", token)
}

func (p *PostgresManager) GetUserByName(ctx context.Context, username string) (*types.User, error) {
	return p.getUser(ctx, "username = ?", username)
}

func (p *PostgresManager) getUser(ctx context.Context, cond string, arg string) (*types.User, error) {
	var rec userRecord
	if err := p.db.WithContext(ctx).Where(cond, arg).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &types.User{
		ID:       rec.ID,
		Username: rec.Username,
		UserType: types.Role(rec.UserType),
		Created:  rec.CreatedAt,
	}, nil
}

func (p *PostgresManager) CreateRoom(ctx context.Context, room *types.Room) error {
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = room.CreatedAt

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := roomRecord{
			ID:             room.ID,
			Name:           room.Name,
			ChannelName:    types.ChannelName(room.Name),
			WhiteboardData: "[]",
			CreatedAt:      room.CreatedAt,
			UpdatedAt:      room.UpdatedAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("failed to insert room: %w", err)
		}
		for _, username := range room.Participants {
			if err := addParticipant(tx, room.ID, username, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	room.Participants, err = p.participants(ctx, room.ID)
	return err
}

func addParticipant(tx *gorm.DB, roomID, username string, at time.Time) error {
	err := tx.Exec(
		`INSERT INTO room_participants (room_id, username, joined_at)
		 SELECT ?, username, ? FROM users WHERE username = ?
		 ON CONFLICT DO NOTHING`,
		roomID, at, username,
	).Error
	if err != nil {
		return fmt.Errorf("failed to add participant %s: %w", username, err)
	}
	return nil
}

func (p *PostgresManager) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	return p.findRoom(ctx, "id = ?", roomID)
}

// FindRoomByChannelName tries the exact name, then the name with
// underscores read as spaces, then the sanitized channel name.
func (p *PostgresManager) FindRoomByChannelName(ctx context.Context, channelName string) (*types.Room, error) {
	lookups := []struct {
		cond string
		arg  string
	}{
		{"name = ?", channelName},
		{"name = ?", strings.ReplaceAll(channelName, "_", " ")},
		{"channel_name = ?", channelName},
	}
	for _, l := range lookups {
		room, err := p.findRoom(ctx, l.cond, l.arg)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, interfaces.ErrRoomNotFound) {
			return nil, err
		}
	}
	return nil, interfaces.ErrRoomNotFound
}

func (p *PostgresManager) findRoom(ctx context.Context, cond string, arg string) (*types.Room, error) {
	var rec roomRecord
	err := p.db.WithContext(ctx).Where(cond, arg).Order("created_at").First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, interfaces.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to query room: %w", err)
	}
	room := rec.toRoom()
	room.Participants, err = p.participants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (r roomRecord) toRoom() *types.Room {
	return &types.Room{
		ID:           r.ID,
		Name:         r.Name,
		Participants: []string{},
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (p *PostgresManager) participants(ctx context.Context, roomID string) ([]string, error) {
	names := []string{}
	err := p.db.WithContext(ctx).Model(&participantRecord{}).
		Where("room_id = ?", roomID).
		Order("joined_at, username").
		Pluck("username", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	return names, nil
}

func (p *PostgresManager) ListRooms(ctx context.Context) ([]*types.Room, error) {
	var recs []roomRecord
	if err := p.db.WithContext(ctx).Order("updated_at DESC, created_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}

	rooms := make([]*types.Room, 0, len(recs))
	byID := make(map[string]*types.Room, len(recs))
	for _, rec := range recs {
		room := rec.toRoom()
		rooms = append(rooms, room)
		byID[room.ID] = room
	}

	var parts []participantRecord
	if err := p.db.WithContext(ctx).Order("joined_at, username").Find(&parts).Error; err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	for _, part := range parts {
		if room, ok := byID[part.RoomID]; ok {
			room.Participants = append(room.Participants, part.Username)
		}
	}
	return rooms, nil
}

func (p *PostgresManager) AddParticipant(ctx context.Context, roomID, username string) error {
	if _, err := p.GetRoom(ctx, roomID); err != nil {
		return err
	}
	return addParticipant(p.db.WithContext(ctx), roomID, username, time.Now().UTC())
}

// StoreMessage persists a chat message and marks the room active.
func (p *PostgresManager) StoreMessage(ctx context.Context, message *types.ChatMessage) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&roomRecord{}).Where("id = ?", message.RoomID).
			UpdateColumn("updated_at", message.CreatedAt)
		if res.Error != nil {
			return fmt.Errorf("failed to touch room: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return interfaces.ErrRoomNotFound
		}
		rec := chatMessageRecord{
			ID:         message.ID,
			RoomID:     message.RoomID,
			SenderName: message.SenderName,
			UserType:   string(message.UserType),
			Content:    message.Content,
			CreatedAt:  message.CreatedAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// GetRecentMessages returns the last limit messages, oldest first.
func (p *PostgresManager) GetRecentMessages(ctx context.Context, roomID string, limit int) ([]*types.ChatMessage, error) {
	messages := []*types.ChatMessage{}
	if limit <= 0 {
		return messages, nil
	}
	var recs []chatMessageRecord
	err := p.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		messages = append(messages, &types.ChatMessage{
			ID:         r.ID,
			RoomID:     r.RoomID,
			SenderName: r.SenderName,
			UserType:   types.Role(r.UserType),
			Content:    r.Content,
			CreatedAt:  r.CreatedAt,
		})
	}
	return messages, nil
}

func (p *PostgresManager) LoadBoard(ctx context.Context, roomID string) ([]types.Action, error) {
	var rec roomRecord
	err := p.db.WithContext(ctx).Select("whiteboard_data").Where("id = ?", roomID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []types.Action{}, nil
		}
		return nil, fmt.Errorf("failed to query whiteboard: %w", err)
	}
	if rec.WhiteboardData == "" {
		return []types.Action{}, nil
	}
	return types.UnmarshalActions([]byte(rec.WhiteboardData))
}

func (p *PostgresManager) SaveBoard(ctx context.Context, roomID string, actions []types.Action) error {
	data, err := types.MarshalActions(actions)
	if err != nil {
		return fmt.Errorf("failed to encode whiteboard: %w", err)
	}
	res := p.db.WithContext(ctx).Model(&roomRecord{}).Where("id = ?", roomID).
		Update("whiteboard_data", string(data))
	if res.Error != nil {
		return fmt.Errorf("failed to save whiteboard: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return interfaces.ErrRoomNotFound
	}
	return nil
}

func (p *PostgresManager) HealthCheck(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (p *PostgresManager) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
