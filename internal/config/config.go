package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	DB       DBConfig       `toml:"database"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Gate     GateConfig     `toml:"gate"`
	Feedback FeedbackConfig `toml:"feedback"`
	Commands CommandsConfig `toml:"commands"`
}

type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

func (l *LogLevel) UnmarshalText(text []byte) error {
	v := string(text)
	switch LogLevel(v) {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		*l = LogLevel(v)
		return nil
	default:
		return fmt.Errorf("invalid log.level: %q (must be debug, info, warn, error)", v)
	}
}

func (l LogLevel) String() string { return string(l) }

func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type LogConfig struct {
	Level           LogLevel            `toml:"level"`
	RejectionLevels map[string]LogLevel `toml:"rejection_levels"`

	// LogBlocked toggles the per-message "blocked" log line.
	LogBlocked       bool    `toml:"log_blocked"`
	BlockedPerSecond float64 `toml:"blocked_per_second"`
	BlockedBurst     int     `toml:"blocked_burst"`
}

type DBConfig struct {
	Path     string `toml:"path"`
	InMemory bool   `toml:"in_memory"`
}

type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// WhitelistConfig holds the switch for a category and its initial entries.
// Entries are only copied into the store when the store has no list for the
// category yet; afterwards the store is authoritative.
type WhitelistConfig struct {
	Enabled bool     `toml:"enabled"`
	Entries []string `toml:"whitelist"`
}

type GateConfig struct {
	BlockTempSessions    bool            `toml:"block_temp_sessions"`
	TempSessionPlatforms []string        `toml:"temp_session_platforms"`
	PlatformIDs          []string        `toml:"platform_ids"`
	Friend               WhitelistConfig `toml:"friend"`
	Group                WhitelistConfig `toml:"group"`
	Global               WhitelistConfig `toml:"global"`
}

type FeedbackConfig struct {
	TempSessionMessage  string        `toml:"temp_session_message"`
	FriendMessage       string        `toml:"friend_message"`
	HistoricalThreshold time.Duration `toml:"historical_threshold"`
	Timezone            string        `toml:"timezone"`
	CacheSize           int           `toml:"cache_size"`
	CacheTTL            time.Duration `toml:"cache_ttl"`
}

// Location resolves Timezone, falling back to the local zone when unset.
func (c *FeedbackConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown feedback.timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type CommandsConfig struct {
	Prefix string   `toml:"prefix"`
	Admins []string `toml:"admins"`

	// RatePerSecond limits commands per sender; 0 disables the limit.
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
}

func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:            InfoLevel,
			LogBlocked:       true,
			BlockedPerSecond: 5,
			BlockedBurst:     20,
		},
		DB: DBConfig{
			Path: "./chatgate-db",
		},
		Gate: GateConfig{
			TempSessionPlatforms: []string{"aiocqhttp"},
		},
		Feedback: FeedbackConfig{
			TempSessionMessage:  "Hi! I'd love to chat, but I need the owner's approval first.",
			FriendMessage:       "You need the owner's approval before chatting with me.",
			HistoricalThreshold: 5 * time.Minute,
			CacheSize:           65536,
			CacheTTL:            48 * time.Hour,
		},
		Commands: CommandsConfig{
			Prefix:        "/awb",
			RatePerSecond: 0.5,
			Burst:         5,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func (c *Config) validate() error {
	// [log]
	if c.Log.BlockedPerSecond < 0 {
		return errors.New("log.blocked_per_second must not be negative")
	}
	if c.Log.BlockedPerSecond > 0 && c.Log.BlockedBurst <= 0 {
		return errors.New("log.blocked_burst must be > 0 when log.blocked_per_second is set")
	}

	// [database]
	if !c.DB.InMemory && strings.TrimSpace(c.DB.Path) == "" {
		return errors.New("database.path must be set unless database.in_memory is true")
	}

	// [gate]
	for i, p := range c.Gate.TempSessionPlatforms {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("gate.temp_session_platforms[%d] must not be empty", i)
		}
	}

	// [feedback]
	fb := c.Feedback
	if fb.HistoricalThreshold <= 0 {
		return errors.New("feedback.historical_threshold must be a positive duration (e.g., '5m')")
	}
	if fb.CacheSize <= 0 {
		return errors.New("feedback.cache_size must be positive")
	}
	// An entry must outlive the day it was written for, or the same session
	// would get a second notice before midnight.
	if fb.CacheTTL < 24*time.Hour {
		return errors.New("feedback.cache_ttl must be at least 24h")
	}
	if _, err := fb.Location(); err != nil {
		return err
	}

	// [commands]
	if strings.TrimSpace(c.Commands.Prefix) == "" {
		return errors.New("commands.prefix must not be empty")
	}
	if strings.ContainsAny(c.Commands.Prefix, " \t\n") {
		return errors.New("commands.prefix must not contain whitespace")
	}
	if c.Commands.RatePerSecond < 0 {
		return errors.New("commands.rate_per_second must not be negative")
	}
	if c.Commands.RatePerSecond > 0 && c.Commands.Burst <= 0 {
		return errors.New("commands.burst must be > 0 when commands.rate_per_second is set")
	}

	return nil
}

func Load(path string, useDefaults bool) (*Config, bool, error) {
	cfg := defaultConfig()
	defaultsUsed := false

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if useDefaults {
				defaultsUsed = true
				if err := cfg.validate(); err != nil {
					return nil, true, err
				}
				return cfg, defaultsUsed, nil
			}
			return nil, false, fmt.Errorf("config file not found at %s", path)
		}
		return nil, false, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, false, err
	}
	return cfg, defaultsUsed, nil
}
