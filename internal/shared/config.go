package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Sync        SyncConfig        `toml:"sync"`
	Storage     StorageConfig     `toml:"storage"`
	Notify      NotifyConfig      `toml:"notify"`
	RateLimit   RateLimitConfig   `toml:"ratelimit"`
	Tokens      TokensConfig      `toml:"tokens"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	Agent       AgentConfig       `toml:"agent"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	PublicURL       string   `toml:"public_url"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// Addr returns the host:port pair the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SyncConfig controls how clipboard items are stored and served.
type SyncConfig struct {
	InlineMaxBytes int64    `toml:"inline_max_bytes"` // items at or below this size keep content in the item row
	ObjectMinBytes int64    `toml:"object_min_bytes"` // external content at or above this size moves to the blob store
	DedupWindow    Duration `toml:"dedup_window"`
	DefaultLimit   int      `toml:"default_limit"`
	MaxLimit       int      `toml:"max_limit"`
	UserMaxLimit   int      `toml:"user_max_limit"`
	MaxWait        Duration `toml:"max_wait"`
	RetentionDays  int      `toml:"retention_days"`
}

// StorageConfig configures the blob store for large clipboard content.
type StorageConfig struct {
	BlobDir     string `toml:"blob_dir"`
	Compression string `toml:"compression"`
}

// NotifyConfig selects the change notifier. An empty RedisAddr keeps notifications in-process.
type NotifyConfig struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	ChannelPrefix string `toml:"channel_prefix"`
}

// RateLimitConfig contains per-device request limits for desktop routes.
type RateLimitConfig struct {
	DesktopPerHour int `toml:"desktop_per_hour"`
	DesktopBurst   int `toml:"desktop_burst"`
}

// TokensConfig contains lifetimes for issued tokens.
type TokensConfig struct {
	WsTokenTTL      Duration `toml:"ws_token_ttl"`
	WsTokenLimit    int      `toml:"ws_token_limit"`
	RegistrationTTL Duration `toml:"registration_ttl"`
	SessionTTL      Duration `toml:"session_ttl"`
}

// MaintenanceConfig configures the background cleanup and storage migration tasks.
type MaintenanceConfig struct {
	Interval Duration `toml:"interval"`
	Workers  int      `toml:"workers"`
	Rate     float64  `toml:"rate"`
}

// AgentConfig contains the desktop agent's identity and sync settings.
type AgentConfig struct {
	ServerURL         string   `toml:"server_url"`
	DeviceID          string   `toml:"device_id"`
	DeviceName        string   `toml:"device_name"`
	APIKey            string   `toml:"api_key"`
	Encryption        bool     `toml:"encryption"`
	PassphraseEnv     string   `toml:"passphrase_env"`
	PollInterval      Duration `toml:"poll_interval"`
	RetryInterval     Duration `toml:"retry_interval"`
	MaxRetries        int      `toml:"max_retries"`
	QueuePath         string   `toml:"queue_path"`
	DropDir           string   `toml:"drop_dir"`
	ClipboardInterval Duration `toml:"clipboard_interval"`
}

// Passphrase reads the encryption passphrase from the configured environment variable.
func (a AgentConfig) Passphrase() string {
	if a.PassphraseEnv == "" {
		return ""
	}
	return os.Getenv(a.PassphraseEnv)
}

// Duration wraps [time.Duration] so it can be written as a string ("5s", "15m") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: bad duration %q", ErrInvalidConfig, string(text))
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and atomically replaces the file at path.
//
// The file holds the agent API key, so it is written with owner-only permissions.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}
