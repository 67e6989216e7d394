// Package cache keeps relay board state in Redis so a room's board survives
// relay restarts.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"liveclass/pkg/types"
)

// DefaultBoardTTL expires boards of rooms nobody has drawn in for a day.
const DefaultBoardTTL = 24 * time.Hour

// RedisBoardStore implements interfaces.BoardStore on a Redis string per room.
type RedisBoardStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisBoardStore connects and pings the server.
func NewRedisBoardStore(ctx context.Context, opts Options, logger *zap.Logger) (*RedisBoardStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultBoardTTL
	}
	logger.Named("cache").Info("connected to redis", zap.String("addr", opts.Addr))
	return &RedisBoardStore{client: client, ttl: ttl, logger: logger.Named("cache")}, nil
}

func boardKey(roomID string) string {
	return "room:" + roomID + ":board"
}

// LoadBoard returns the stored actions, or an empty board when the key is
// missing. Entries of unknown type are skipped.
func (s *RedisBoardStore) LoadBoard(ctx context.Context, roomID string) ([]types.Action, error) {
	data, err := s.client.Get(ctx, boardKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []types.Action{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get board %s: %w", roomID, err)
	}
	actions, err := types.UnmarshalActions(data)
	if err != nil {
		s.logger.Warn("discarding unreadable board", zap.String("room", roomID), zap.Error(err))
		return []types.Action{}, nil
	}
	return actions, nil
}

// SaveBoard overwrites the board and refreshes its TTL.
func (s *RedisBoardStore) SaveBoard(ctx context.Context, roomID string, actions []types.Action) error {
	data, err := types.MarshalActions(actions)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, boardKey(roomID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set board %s: %w", roomID, err)
	}
	return nil
}

// DeleteBoard removes a room's board.
func (s *RedisBoardStore) DeleteBoard(ctx context.Context, roomID string) error {
	return s.client.Del(ctx, boardKey(roomID)).Err()
}

func (s *RedisBoardStore) Close() error {
	return s.client.Close()
}
