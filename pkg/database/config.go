package database

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the SQLite connection settings.
type Config struct {
	DatabasePath    string        `json:"database_path"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	BusyTimeout     time.Duration `json:"busy_timeout"`
}

// DefaultConfig returns settings sized for a single classroom server.
// SQLite handles 10 concurrent readers comfortably behind one writer.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "./liveclass.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 10,
		BusyTimeout:     5 * time.Second,
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		return errors.New("connection max lifetime must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	if c.BusyTimeout < 0 {
		return errors.New("busy timeout cannot be negative")
	}
	return nil
}

// DSN is the go-sqlite3 connection string. WAL, foreign keys and the busy
// timeout are set per connection through the DSN so every pooled
// connection gets them.
func (c *Config) DSN() string {
	return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL",
		c.DatabasePath, c.BusyTimeout.Milliseconds())
}
