// Package config provides Viper-based configuration loading for the melee
// session core and its development backend.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cory-johannsen/melee/internal/protocol"
)

// BackendConfig holds coordination backend endpoints.
type BackendConfig struct {
	// BaseURL is the HTTP base URL for request/response room operations.
	BaseURL string `mapstructure:"base_url"`
	// WebsocketURL is the endpoint for the persistent channel.
	WebsocketURL string `mapstructure:"websocket_url"`
	// RequestTimeout bounds each room operation round trip.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SessionConfig holds session core tuning knobs. This is the explicit
// construction-time configuration replacing runtime field injection.
type SessionConfig struct {
	// PollInterval is the reconciliation poller cadence while a room is held
	// and not yet started.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// PositionTickInterval is the cadence for lossy position replication.
	PositionTickInterval time.Duration `mapstructure:"position_tick_interval"`
	// HeartbeatInterval is the cadence for channel keep-alive frames.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// LeaveTimeout bounds the best-effort leave request during shutdown.
	LeaveTimeout time.Duration `mapstructure:"leave_timeout"`
	// WeaponOrder is the ordered candidate list for weapon assignment.
	WeaponOrder []string `mapstructure:"weapon_order"`
	// EventBuffer is the capacity of the presentation event channel.
	EventBuffer int `mapstructure:"event_buffer"`
}

// Weapons returns the configured candidate order as typed weapon values.
//
// Precondition: Validate must have passed.
func (s SessionConfig) Weapons() []protocol.Weapon {
	out := make([]protocol.Weapon, 0, len(s.WeaponOrder))
	for _, w := range s.WeaponOrder {
		out = append(out, protocol.Weapon(w))
	}
	return out
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// DevBackendConfig holds the development coordination backend listener
// settings.
type DevBackendConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
func (d DevBackendConfig) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// Config is the top-level application configuration.
type Config struct {
	Backend    BackendConfig    `mapstructure:"backend"`
	Session    SessionConfig    `mapstructure:"session"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	DevBackend DevBackendConfig `mapstructure:"devbackend"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateBackend(c.Backend); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSession(c.Session); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDevBackend(c.DevBackend); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateBackend(b BackendConfig) error {
	var errs []string
	if b.BaseURL == "" {
		errs = append(errs, "backend.base_url must not be empty")
	}
	if b.WebsocketURL == "" {
		errs = append(errs, "backend.websocket_url must not be empty")
	}
	if b.RequestTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("backend.request_timeout must be positive, got %s", b.RequestTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSession(s SessionConfig) error {
	var errs []string
	if s.PollInterval <= 0 {
		errs = append(errs, fmt.Sprintf("session.poll_interval must be positive, got %s", s.PollInterval))
	}
	if s.PositionTickInterval <= 0 {
		errs = append(errs, fmt.Sprintf("session.position_tick_interval must be positive, got %s", s.PositionTickInterval))
	}
	if s.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Sprintf("session.heartbeat_interval must be positive, got %s", s.HeartbeatInterval))
	}
	if s.LeaveTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("session.leave_timeout must be positive, got %s", s.LeaveTimeout))
	}
	if len(s.WeaponOrder) == 0 {
		errs = append(errs, "session.weapon_order must not be empty")
	}
	for _, w := range s.WeaponOrder {
		weapon := protocol.Weapon(w)
		if !weapon.Valid() || weapon == protocol.WeaponNone {
			errs = append(errs, fmt.Sprintf("session.weapon_order contains unknown weapon %q", w))
		}
	}
	if s.EventBuffer < 1 {
		errs = append(errs, fmt.Sprintf("session.event_buffer must be >= 1, got %d", s.EventBuffer))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateDevBackend(d DevBackendConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "devbackend.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("devbackend.port must be 1-65535, got %d", d.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment
// variable overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with MELEE_ prefix
	v.SetEnvPrefix("MELEE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
// Used by tests and by binaries run without a config path.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always unmarshal and validate cleanly.
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8090")
	v.SetDefault("backend.websocket_url", "ws://localhost:8090/channel")
	v.SetDefault("backend.request_timeout", "5s")

	v.SetDefault("session.poll_interval", "3s")
	v.SetDefault("session.position_tick_interval", "100ms")
	v.SetDefault("session.heartbeat_interval", "15s")
	v.SetDefault("session.leave_timeout", "2s")
	v.SetDefault("session.weapon_order", []string{"sword", "axe", "spear"})
	v.SetDefault("session.event_buffer", 64)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("devbackend.host", "0.0.0.0")
	v.SetDefault("devbackend.port", 8090)
}
