package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (GIGBELL_STREAM_PATH, ...).
const EnvPrefix = "GIGBELL"

// EnvWSBase names the variable that carries the duplex transport base
// address. It takes precedence over stream.base_url in the config file.
const EnvWSBase = "GIGBELL_WS_BASE"

// Store backends.
const (
	StoreBackendMemory = "memory"
	StoreBackendSQLite = "sqlite"
)

// Duplicate-id policies for the notification store.
const (
	DuplicatesKeep = "keep"
	DuplicatesDrop = "drop"
)

// ReconnectConfig controls what happens after the server closes the
// stream or a read fails. MaxAttempts of 0 disables reconnection.
type ReconnectConfig struct {
	MaxAttempts       int `mapstructure:"max_attempts" yaml:"max_attempts" validate:"min=0"`
	InitialIntervalMs int `mapstructure:"initial_interval_ms" yaml:"initial_interval_ms" validate:"min=0"`
	MaxIntervalSec    int `mapstructure:"max_interval_sec" yaml:"max_interval_sec" validate:"min=0"`
}

// StreamConfig holds the notification stream endpoint settings.
type StreamConfig struct {
	// BaseURL is the ws:// or wss:// root of the backend.
	BaseURL string `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`

	// Path is appended to BaseURL.
	Path string `mapstructure:"path" yaml:"path" validate:"required,startswith=/"`

	HandshakeTimeoutSec int `mapstructure:"handshake_timeout_sec" yaml:"handshake_timeout_sec" validate:"min=0"`

	Reconnect ReconnectConfig `mapstructure:"reconnect" yaml:"reconnect"`
}

// HandshakeTimeout returns the dial timeout as a duration.
func (c StreamConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSec) * time.Second
}

// StoreConfig selects how notifications are held for the session.
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend" validate:"oneof=memory sqlite"`

	// Capacity bounds the number of records kept; 0 keeps everything.
	Capacity int `mapstructure:"capacity" yaml:"capacity" validate:"min=0"`

	Duplicates string `mapstructure:"duplicates" yaml:"duplicates" validate:"oneof=keep drop"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	// DateLayout formats timestamps older than a day.
	DateLayout string `mapstructure:"date_layout" yaml:"date_layout" validate:"required"`
}

// LogConfig controls where diagnostics go while the dashboard owns the
// terminal.
type LogConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Stream  StreamConfig  `mapstructure:"stream" yaml:"stream"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ConfigDir returns ~/.config/gigbell.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "gigbell")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/gigbell/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultLogPath returns the log file used by the dashboard when none is
// configured.
func DefaultLogPath() string {
	return filepath.Join(ConfigDir(), "gigbell.log")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Stream: StreamConfig{
			BaseURL:             "ws://localhost:8000",
			Path:                "/ws/notifications/",
			HandshakeTimeoutSec: 10,
			Reconnect: ReconnectConfig{
				MaxAttempts:       0,
				InitialIntervalMs: 500,
				MaxIntervalSec:    30,
			},
		},
		Store: StoreConfig{
			Backend:    StoreBackendMemory,
			Capacity:   0,
			Duplicates: DuplicatesKeep,
		},
		Display: DisplayConfig{
			DateLayout: "Jan 2, 2006",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultAppConfig()
	v.SetDefault("stream.base_url", d.Stream.BaseURL)
	v.SetDefault("stream.path", d.Stream.Path)
	v.SetDefault("stream.handshake_timeout_sec", d.Stream.HandshakeTimeoutSec)
	v.SetDefault("stream.reconnect.max_attempts", d.Stream.Reconnect.MaxAttempts)
	v.SetDefault("stream.reconnect.initial_interval_ms", d.Stream.Reconnect.InitialIntervalMs)
	v.SetDefault("stream.reconnect.max_interval_sec", d.Stream.Reconnect.MaxIntervalSec)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.capacity", d.Store.Capacity)
	v.SetDefault("store.duplicates", d.Store.Duplicates)
	v.SetDefault("display.date_layout", d.Display.DateLayout)
	v.SetDefault("log.file", d.Log.File)
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// applies GIGBELL_* environment overrides and validates the result.
// A missing file yields the defaults (still subject to the environment).
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("stream.base_url", EnvWSBase); err != nil {
		return nil, fmt.Errorf("binding %s: %w", EnvWSBase, err)
	}

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints declared in the struct tags.
func (c *AppConfig) Validate() error {
	return validate.Struct(c)
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("stream", cfg.Stream)
	v.Set("store", cfg.Store)
	v.Set("display", cfg.Display)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
