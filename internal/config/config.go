package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"liveclass/pkg/types"
)

// EnvPrefix namespaces every environment variable read by LoadFromEnv.
const EnvPrefix = "LIVECLASS_"

// Config groups the client engine settings and the reference server settings.
// Both binaries load the same structure and read the sections they need.
type Config struct {
	Client    *ClientConfig    `json:"client"`
	Audio     *AudioConfig     `json:"audio"`
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Relay     *RelayConfig     `json:"relay"`
	Log       *LogConfig       `json:"log"`
}

// ClientConfig describes how the session client reaches its collaborators.
type ClientConfig struct {
	APIBaseURL     string        `json:"api_base_url"`
	RelayURL       string        `json:"relay_url"`
	Token          string        `json:"token"`
	Username       string        `json:"username"`
	Role           types.Role    `json:"role"`
	RetryDelay     time.Duration `json:"retry_delay"`
	RelayEchoes    bool          `json:"relay_echoes"`
	NoticeDuration time.Duration `json:"notice_duration"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// AudioConfig holds the broadcast format and the listener buffering policy.
type AudioConfig struct {
	TargetRate        int           `json:"target_rate"`
	MaxLead           time.Duration `json:"max_lead"`
	ResetLead         time.Duration `json:"reset_lead"`
	CaptureBufferSize int           `json:"capture_buffer_size"`
}

// DatabaseConfig selects the backend store. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver  string        `json:"driver"`
	Path    string        `json:"path"`
	DSN     string        `json:"dsn"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

// WebSocketConfig is shared by the relay connections and the client dialer.
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// RelayConfig bounds the per-room state kept by the reference relay.
// BoardStore is "database" or "redis".
type RelayConfig struct {
	MaxActions        int    `json:"max_actions"`
	ChatRatePerMinute int    `json:"chat_rate_per_minute"`
	HistoryLimit      int    `json:"history_limit"`
	BoardStore        string `json:"board_store"`
	RedisAddr         string `json:"redis_addr"`
	RedisPassword     string `json:"redis_password"`
	RedisDB           int    `json:"redis_db"`
}

type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// DefaultConfig returns settings suitable for a local classroom: server on
// 8080, a SQLite file in the working directory, 2s reconnect delay and
// 16 kHz audio.
func DefaultConfig() *Config {
	return &Config{
		Client: &ClientConfig{
			APIBaseURL:     "http://localhost:8080",
			RelayURL:       "ws://localhost:8080",
			Role:           types.RoleStudent,
			RetryDelay:     2 * time.Second,
			RelayEchoes:    true,
			NoticeDuration: 4 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
		Audio: &AudioConfig{
			TargetRate:        16000,
			MaxLead:           time.Second,
			ResetLead:         50 * time.Millisecond,
			CaptureBufferSize: 4096,
		},
		Database: &DatabaseConfig{
			Driver:  "sqlite",
			Path:    "./liveclass.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Relay: &RelayConfig{
			MaxActions:        500,
			ChatRatePerMinute: 100,
			HistoryLimit:      100,
			BoardStore:        "database",
			RedisAddr:         "localhost:6379",
		},
		Log: &LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Client == nil {
		return fmt.Errorf("client configuration is required")
	}
	if c.Client.RetryDelay <= 0 {
		return fmt.Errorf("client retry delay must be positive")
	}
	if c.Client.NoticeDuration <= 0 {
		return fmt.Errorf("client notice duration must be positive")
	}
	if c.Client.RequestTimeout <= 0 {
		return fmt.Errorf("client request timeout must be positive")
	}
	if c.Client.Role != "" && !c.Client.Role.IsValid() {
		return fmt.Errorf("client role: %w", types.ErrInvalidRole)
	}

	if c.Audio == nil {
		return fmt.Errorf("audio configuration is required")
	}
	if c.Audio.TargetRate <= 0 {
		return fmt.Errorf("audio target rate must be positive")
	}
	if c.Audio.MaxLead <= 0 || c.Audio.ResetLead <= 0 {
		return fmt.Errorf("audio scheduling leads must be positive")
	}
	if c.Audio.ResetLead >= c.Audio.MaxLead {
		return fmt.Errorf("audio reset lead must be shorter than max lead")
	}
	if c.Audio.CaptureBufferSize <= 0 {
		return fmt.Errorf("audio capture buffer size must be positive")
	}

	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path cannot be empty")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database DSN cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	// Port 0 binds a free port.
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Relay == nil {
		return fmt.Errorf("relay configuration is required")
	}
	if c.Relay.MaxActions <= 0 {
		return fmt.Errorf("relay max actions must be positive")
	}
	if c.Relay.ChatRatePerMinute <= 0 {
		return fmt.Errorf("relay chat rate must be positive")
	}
	if c.Relay.HistoryLimit <= 0 {
		return fmt.Errorf("relay history limit must be positive")
	}
	switch c.Relay.BoardStore {
	case "database":
	case "redis":
		if c.Relay.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported board store %q", c.Relay.BoardStore)
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	return nil
}

// LoadFromEnv applies LIVECLASS_* variables over the defaults. A .env file in
// the working directory is loaded first when present; variables already set
// in the process environment win over it.
func LoadFromEnv() *Config {
	_ = godotenv.Load()

	config := DefaultConfig()

	config.Client.APIBaseURL = envString("CLIENT_API_BASE_URL", config.Client.APIBaseURL)
	config.Client.RelayURL = envString("CLIENT_RELAY_URL", config.Client.RelayURL)
	config.Client.Token = envString("CLIENT_TOKEN", config.Client.Token)
	config.Client.Username = envString("CLIENT_USERNAME", config.Client.Username)
	config.Client.Role = types.Role(envString("CLIENT_ROLE", string(config.Client.Role)))
	config.Client.RetryDelay = envDuration("CLIENT_RETRY_DELAY", config.Client.RetryDelay)
	config.Client.RelayEchoes = envBool("CLIENT_RELAY_ECHOES", config.Client.RelayEchoes)
	config.Client.NoticeDuration = envDuration("CLIENT_NOTICE_DURATION", config.Client.NoticeDuration)
	config.Client.RequestTimeout = envDuration("CLIENT_REQUEST_TIMEOUT", config.Client.RequestTimeout)

	config.Audio.TargetRate = envInt("AUDIO_TARGET_RATE", config.Audio.TargetRate)
	config.Audio.MaxLead = envDuration("AUDIO_MAX_LEAD", config.Audio.MaxLead)
	config.Audio.ResetLead = envDuration("AUDIO_RESET_LEAD", config.Audio.ResetLead)
	config.Audio.CaptureBufferSize = envInt("AUDIO_CAPTURE_BUFFER_SIZE", config.Audio.CaptureBufferSize)

	config.Database.Driver = envString("DATABASE_DRIVER", config.Database.Driver)
	config.Database.Path = envString("DATABASE_PATH", config.Database.Path)
	config.Database.DSN = envString("DATABASE_DSN", config.Database.DSN)
	config.Database.Timeout = envDuration("DATABASE_TIMEOUT", config.Database.Timeout)

	config.HTTP.Port = envInt("HTTP_PORT", config.HTTP.Port)
	config.HTTP.Host = envString("HTTP_HOST", config.HTTP.Host)
	config.HTTP.ReadTimeout = envDuration("HTTP_READ_TIMEOUT", config.HTTP.ReadTimeout)
	config.HTTP.WriteTimeout = envDuration("HTTP_WRITE_TIMEOUT", config.HTTP.WriteTimeout)

	config.WebSocket.PingInterval = envDuration("WEBSOCKET_PING_INTERVAL", config.WebSocket.PingInterval)
	config.WebSocket.ReadTimeout = envDuration("WEBSOCKET_READ_TIMEOUT", config.WebSocket.ReadTimeout)
	config.WebSocket.WriteTimeout = envDuration("WEBSOCKET_WRITE_TIMEOUT", config.WebSocket.WriteTimeout)
	config.WebSocket.BufferSize = envInt("WEBSOCKET_BUFFER_SIZE", config.WebSocket.BufferSize)

	config.Relay.MaxActions = envInt("RELAY_MAX_ACTIONS", config.Relay.MaxActions)
	config.Relay.ChatRatePerMinute = envInt("RELAY_CHAT_RATE_PER_MINUTE", config.Relay.ChatRatePerMinute)
	config.Relay.HistoryLimit = envInt("RELAY_HISTORY_LIMIT", config.Relay.HistoryLimit)
	config.Relay.BoardStore = envString("RELAY_BOARD_STORE", config.Relay.BoardStore)
	config.Relay.RedisAddr = envString("RELAY_REDIS_ADDR", config.Relay.RedisAddr)
	config.Relay.RedisPassword = envString("RELAY_REDIS_PASSWORD", config.Relay.RedisPassword)
	config.Relay.RedisDB = envInt("RELAY_REDIS_DB", config.Relay.RedisDB)

	config.Log.Level = envString("LOG_LEVEL", config.Log.Level)
	config.Log.Development = envBool("LOG_DEVELOPMENT", config.Log.Development)

	return config
}

func envString(key, fallback string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// ConfigFile mirrors Config for JSON files, with durations as strings such
// as "2s" or "50ms".
type ConfigFile struct {
	Client    *ClientConfigFile    `json:"client"`
	Audio     *AudioConfigFile     `json:"audio"`
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Relay     *RelayConfig         `json:"relay"`
	Log       *LogConfig           `json:"log"`
}

type ClientConfigFile struct {
	APIBaseURL     string `json:"api_base_url"`
	RelayURL       string `json:"relay_url"`
	Token          string `json:"token"`
	Username       string `json:"username"`
	Role           string `json:"role"`
	RetryDelay     string `json:"retry_delay"`
	RelayEchoes    *bool  `json:"relay_echoes"`
	NoticeDuration string `json:"notice_duration"`
	RequestTimeout string `json:"request_timeout"`
}

type AudioConfigFile struct {
	TargetRate        int    `json:"target_rate"`
	MaxLead           string `json:"max_lead"`
	ResetLead         string `json:"reset_lead"`
	CaptureBufferSize int    `json:"capture_buffer_size"`
}

type DatabaseConfigFile struct {
	Driver  string `json:"driver"`
	Path    string `json:"path"`
	DSN     string `json:"dsn"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

// LoadFromFile reads a JSON configuration file over the defaults. Missing
// sections and zero values keep their defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()
	if err := file.apply(config); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func (f *ConfigFile) apply(config *Config) error {
	var errs []string
	duration := func(name, value string, dst *time.Duration) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			return
		}
		*dst = d
	}
	str := func(value string, dst *string) {
		if value != "" {
			*dst = value
		}
	}
	positive := func(value int, dst *int) {
		if value > 0 {
			*dst = value
		}
	}

	if c := f.Client; c != nil {
		str(c.APIBaseURL, &config.Client.APIBaseURL)
		str(c.RelayURL, &config.Client.RelayURL)
		str(c.Token, &config.Client.Token)
		str(c.Username, &config.Client.Username)
		if c.Role != "" {
			config.Client.Role = types.Role(c.Role)
		}
		if c.RelayEchoes != nil {
			config.Client.RelayEchoes = *c.RelayEchoes
		}
		duration("client.retry_delay", c.RetryDelay, &config.Client.RetryDelay)
		duration("client.notice_duration", c.NoticeDuration, &config.Client.NoticeDuration)
		duration("client.request_timeout", c.RequestTimeout, &config.Client.RequestTimeout)
	}

	if a := f.Audio; a != nil {
		positive(a.TargetRate, &config.Audio.TargetRate)
		positive(a.CaptureBufferSize, &config.Audio.CaptureBufferSize)
		duration("audio.max_lead", a.MaxLead, &config.Audio.MaxLead)
		duration("audio.reset_lead", a.ResetLead, &config.Audio.ResetLead)
	}

	if d := f.Database; d != nil {
		str(d.Driver, &config.Database.Driver)
		str(d.Path, &config.Database.Path)
		str(d.DSN, &config.Database.DSN)
		duration("database.timeout", d.Timeout, &config.Database.Timeout)
	}

	if h := f.HTTP; h != nil {
		positive(h.Port, &config.HTTP.Port)
		str(h.Host, &config.HTTP.Host)
		duration("http.read_timeout", h.ReadTimeout, &config.HTTP.ReadTimeout)
		duration("http.write_timeout", h.WriteTimeout, &config.HTTP.WriteTimeout)
	}

	if w := f.WebSocket; w != nil {
		positive(w.BufferSize, &config.WebSocket.BufferSize)
		duration("websocket.ping_interval", w.PingInterval, &config.WebSocket.PingInterval)
		duration("websocket.read_timeout", w.ReadTimeout, &config.WebSocket.ReadTimeout)
		duration("websocket.write_timeout", w.WriteTimeout, &config.WebSocket.WriteTimeout)
	}

	if r := f.Relay; r != nil {
		positive(r.MaxActions, &config.Relay.MaxActions)
		positive(r.ChatRatePerMinute, &config.Relay.ChatRatePerMinute)
		positive(r.HistoryLimit, &config.Relay.HistoryLimit)
		str(r.BoardStore, &config.Relay.BoardStore)
		str(r.RedisAddr, &config.Relay.RedisAddr)
		str(r.RedisPassword, &config.Relay.RedisPassword)
		if r.RedisDB > 0 {
			config.Relay.RedisDB = r.RedisDB
		}
	}

	if l := f.Log; l != nil {
		str(l.Level, &config.Log.Level)
		config.Log.Development = l.Development
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment >
// defaults. A missing or invalid file falls back to the environment.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()
	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}
	return config
}
