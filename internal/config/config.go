// Package config loads server configuration from an HCL file with
// environment overrides.
package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lox/cardroom/internal/archive"
	"github.com/lox/cardroom/internal/game"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig
	Rooms    RoomsConfig
	Defaults DefaultsConfig
	Limits   LimitsConfig
	Archive  ArchiveConfig
}

// ServerConfig contains listener and logging settings.
type ServerConfig struct {
	Address        string   `hcl:"address,optional"`
	Port           int      `hcl:"port,optional"`
	LogLevel       string   `hcl:"log_level,optional"`
	LogFormat      string   `hcl:"log_format,optional"`
	AdminToken     string   `hcl:"admin_token,optional"`
	AllowedOrigins []string `hcl:"allowed_origins,optional"`
}

// RoomsConfig contains room registry and timer settings. Durations use
// time.ParseDuration syntax.
type RoomsConfig struct {
	MaxRooms      int    `hcl:"max_rooms,optional"`
	IdleTimeout   string `hcl:"idle_timeout,optional"`
	SweepInterval string `hcl:"sweep_interval,optional"`
	AFKWarning    string `hcl:"afk_warning,optional"`
	MaxAFK        int    `hcl:"max_afk,optional"`
}

// DefaultsConfig are the settings a new room starts with.
type DefaultsConfig struct {
	GameType         string         `hcl:"game_type,optional"`
	MinPlayers       int            `hcl:"min_players,optional"`
	MaxPlayers       int            `hcl:"max_players,optional"`
	TurnTimeout      string         `hcl:"turn_timeout,optional"`
	ReconnectTimeout string         `hcl:"reconnect_timeout,optional"`
	Private          bool           `hcl:"private,optional"`
	Extras           map[string]int `hcl:"extras,optional"`
}

// LimitsConfig bounds what a single connection may send.
type LimitsConfig struct {
	MessagesPerSecond float64 `hcl:"messages_per_second,optional"`
	Burst             int     `hcl:"burst,optional"`
	MaxMessageBytes   int64   `hcl:"max_message_bytes,optional"`
	MaxNameLength     int     `hcl:"max_name_length,optional"`
	MaxChatLength     int     `hcl:"max_chat_length,optional"`
}

// Archive drivers.
const (
	ArchiveSQLite = archive.DriverSQLite
	ArchiveFile   = archive.DriverFile
	ArchiveNone   = "none"
)

// ArchiveConfig selects where finished games are recorded.
type ArchiveConfig struct {
	Driver    string `hcl:"driver,optional"`
	Path      string `hcl:"path,optional"`
	QueueSize int    `hcl:"queue_size,optional"`
}

// file mirrors the HCL layout. Every block is optional.
type file struct {
	Server   *ServerConfig   `hcl:"server,block"`
	Rooms    *RoomsConfig    `hcl:"rooms,block"`
	Defaults *DefaultsConfig `hcl:"defaults,block"`
	Limits   *LimitsConfig   `hcl:"limits,block"`
	Archive  *ArchiveConfig  `hcl:"archive,block"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:   "localhost",
			Port:      8080,
			LogLevel:  "info",
			LogFormat: "text",
		},
		Rooms: RoomsConfig{
			IdleTimeout:   "30m",
			SweepInterval: "1m",
			AFKWarning:    "15s",
			MaxAFK:        3,
		},
		Defaults: DefaultsConfig{
			GameType:         game.DefaultGameType,
			MinPlayers:       game.DefaultMinPlayers,
			MaxPlayers:       game.DefaultMaxPlayers,
			TurnTimeout:      game.DefaultTurnTimeout.String(),
			ReconnectTimeout: game.DefaultReconnectTimeout.String(),
		},
		Limits: LimitsConfig{
			MessagesPerSecond: 10,
			Burst:             20,
			MaxMessageBytes:   8192,
			MaxNameLength:     20,
			MaxChatLength:     500,
		},
		Archive: ArchiveConfig{
			Driver:    ArchiveSQLite,
			Path:      "cardroom.db",
			QueueSize: 64,
		},
	}
}

// Load reads the HCL file at path (defaults if it does not exist) and applies
// CARDROOM_* environment overrides.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads an HCL file. Attributes and blocks left out keep their
// defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var raw file
	if diags := gohcl.DecodeBody(f.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}
	cfg.merge(raw)
	return cfg, nil
}

func (c *Config) merge(raw file) {
	if s := raw.Server; s != nil {
		set(&c.Server.Address, s.Address)
		set(&c.Server.Port, s.Port)
		set(&c.Server.LogLevel, s.LogLevel)
		set(&c.Server.LogFormat, s.LogFormat)
		set(&c.Server.AdminToken, s.AdminToken)
		if len(s.AllowedOrigins) > 0 {
			c.Server.AllowedOrigins = s.AllowedOrigins
		}
	}
	if r := raw.Rooms; r != nil {
		set(&c.Rooms.MaxRooms, r.MaxRooms)
		set(&c.Rooms.IdleTimeout, r.IdleTimeout)
		set(&c.Rooms.SweepInterval, r.SweepInterval)
		set(&c.Rooms.AFKWarning, r.AFKWarning)
		set(&c.Rooms.MaxAFK, r.MaxAFK)
	}
	if d := raw.Defaults; d != nil {
		set(&c.Defaults.GameType, d.GameType)
		set(&c.Defaults.MinPlayers, d.MinPlayers)
		set(&c.Defaults.MaxPlayers, d.MaxPlayers)
		set(&c.Defaults.TurnTimeout, d.TurnTimeout)
		set(&c.Defaults.ReconnectTimeout, d.ReconnectTimeout)
		c.Defaults.Private = d.Private
		if len(d.Extras) > 0 {
			c.Defaults.Extras = maps.Clone(d.Extras)
		}
	}
	if l := raw.Limits; l != nil {
		set(&c.Limits.MessagesPerSecond, l.MessagesPerSecond)
		set(&c.Limits.Burst, l.Burst)
		set(&c.Limits.MaxMessageBytes, l.MaxMessageBytes)
		set(&c.Limits.MaxNameLength, l.MaxNameLength)
		set(&c.Limits.MaxChatLength, l.MaxChatLength)
	}
	if a := raw.Archive; a != nil {
		set(&c.Archive.Driver, a.Driver)
		set(&c.Archive.Path, a.Path)
		set(&c.Archive.QueueSize, a.QueueSize)
	}
}

// set overwrites dst unless v is the zero value.
func set[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

// overrides are the environment variables that take precedence over the file.
type overrides struct {
	Address       *string `env:"CARDROOM_ADDRESS"`
	Port          *int    `env:"CARDROOM_PORT"`
	LogLevel      *string `env:"CARDROOM_LOG_LEVEL"`
	LogFormat     *string `env:"CARDROOM_LOG_FORMAT"`
	AdminToken    *string `env:"CARDROOM_ADMIN_TOKEN"`
	MaxRooms      *int    `env:"CARDROOM_MAX_ROOMS"`
	IdleTimeout   *string `env:"CARDROOM_IDLE_TIMEOUT"`
	TurnTimeout   *string `env:"CARDROOM_TURN_TIMEOUT"`
	ArchiveDriver *string `env:"CARDROOM_ARCHIVE_DRIVER"`
	ArchivePath   *string `env:"CARDROOM_ARCHIVE_PATH"`
}

// ApplyEnv applies CARDROOM_* overrides. A nil environ reads the process
// environment.
func (c *Config) ApplyEnv(environ map[string]string) error {
	var o overrides
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	apply(&c.Server.Address, o.Address)
	apply(&c.Server.Port, o.Port)
	apply(&c.Server.LogLevel, o.LogLevel)
	apply(&c.Server.LogFormat, o.LogFormat)
	apply(&c.Server.AdminToken, o.AdminToken)
	apply(&c.Rooms.MaxRooms, o.MaxRooms)
	apply(&c.Rooms.IdleTimeout, o.IdleTimeout)
	apply(&c.Defaults.TurnTimeout, o.TurnTimeout)
	apply(&c.Archive.Driver, o.ArchiveDriver)
	apply(&c.Archive.Path, o.ArchivePath)
	return nil
}

func apply[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Server.LogLevel) {
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}
	if c.Server.LogFormat != "text" && c.Server.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s", c.Server.LogFormat)
	}

	if c.Rooms.MaxRooms < 0 {
		return fmt.Errorf("rooms: max_rooms cannot be negative")
	}
	if c.Rooms.MaxAFK < 0 {
		return fmt.Errorf("rooms: max_afk cannot be negative")
	}
	for name, v := range map[string]string{
		"idle_timeout":   c.Rooms.IdleTimeout,
		"sweep_interval": c.Rooms.SweepInterval,
		"afk_warning":    c.Rooms.AFKWarning,
	} {
		if err := positive(v); err != nil {
			return fmt.Errorf("rooms: %s %w", name, err)
		}
	}

	for name, v := range map[string]string{
		"turn_timeout":      c.Defaults.TurnTimeout,
		"reconnect_timeout": c.Defaults.ReconnectTimeout,
	} {
		if err := positive(v); err != nil {
			return fmt.Errorf("defaults: %s %w", name, err)
		}
	}
	if err := c.GameSettings().Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	if warn, turn := c.AFKWarning(), c.GameSettings().TurnTimeout; warn >= turn {
		return fmt.Errorf("rooms: afk_warning %s must be shorter than the turn timeout %s", warn, turn)
	}

	if c.Limits.MessagesPerSecond <= 0 || c.Limits.Burst <= 0 {
		return fmt.Errorf("limits: messages_per_second and burst must be positive")
	}
	if c.Limits.MaxMessageBytes < 512 {
		return fmt.Errorf("limits: max_message_bytes must be at least 512")
	}
	if c.Limits.MaxNameLength < 1 || c.Limits.MaxChatLength < 1 {
		return fmt.Errorf("limits: name and chat lengths must be positive")
	}

	switch c.Archive.Driver {
	case ArchiveSQLite, ArchiveFile:
		if c.Archive.Path == "" {
			return fmt.Errorf("archive: path is required for the %s driver", c.Archive.Driver)
		}
	case ArchiveNone:
	default:
		return fmt.Errorf("archive: unknown driver %q", c.Archive.Driver)
	}
	return nil
}

func positive(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("is not a duration: %q", s)
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

// duration parses a value already checked by Validate.
func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ListenAddress returns host:port.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

func (c *Config) IdleTimeout() time.Duration   { return duration(c.Rooms.IdleTimeout) }
func (c *Config) SweepInterval() time.Duration { return duration(c.Rooms.SweepInterval) }
func (c *Config) AFKWarning() time.Duration    { return duration(c.Rooms.AFKWarning) }

// GameSettings converts the defaults block to room settings.
func (c *Config) GameSettings() game.Settings {
	s := game.DefaultSettings()
	s.GameType = c.Defaults.GameType
	s.MinPlayers = c.Defaults.MinPlayers
	s.MaxPlayers = c.Defaults.MaxPlayers
	s.TurnTimeout = duration(c.Defaults.TurnTimeout)
	s.ReconnectTimeout = duration(c.Defaults.ReconnectTimeout)
	s.Private = c.Defaults.Private
	for k, v := range c.Defaults.Extras {
		s.Extras[k] = v
	}
	return s
}
