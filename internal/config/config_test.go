package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/melee/internal/protocol"
)

func validConfig() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8090",
			WebsocketURL:   "ws://localhost:8090/channel",
			RequestTimeout: 5 * time.Second,
		},
		Session: SessionConfig{
			PollInterval:         3 * time.Second,
			PositionTickInterval: 100 * time.Millisecond,
			HeartbeatInterval:    15 * time.Second,
			LeaveTimeout:         2 * time.Second,
			WeaponOrder:          []string{"sword", "axe", "spear"},
			EventBuffer:          64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		DevBackend: DevBackendConfig{
			Host: "0.0.0.0",
			Port: 8090,
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestDevBackendAddr(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "0.0.0.0:8090", cfg.DevBackend.Addr())
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	err := os.WriteFile(path, []byte(`
backend:
  base_url: http://backend.test:9000
  websocket_url: ws://backend.test:9000/channel
  request_timeout: 2s
session:
  poll_interval: 1s
  position_tick_interval: 50ms
  heartbeat_interval: 10s
  leave_timeout: 1s
  weapon_order: [axe, sword]
  event_buffer: 16
logging:
  level: debug
  format: console
devbackend:
  host: 127.0.0.1
  port: 9000
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend.test:9000", cfg.Backend.BaseURL)
	assert.Equal(t, time.Second, cfg.Session.PollInterval)
	assert.Equal(t, []string{"axe", "sword"}, cfg.Session.WeaponOrder)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 9000, cfg.DevBackend.Port)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestValidateBackendURLs(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.BaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Backend.WebsocketURL = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRequestTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.RequestTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateSessionIntervals(t *testing.T) {
	cfg := validConfig()
	cfg.Session.PollInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Session.PositionTickInterval = -time.Second
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Session.HeartbeatInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Session.LeaveTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateWeaponOrder(t *testing.T) {
	cfg := validConfig()
	cfg.Session.WeaponOrder = nil
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Session.WeaponOrder = []string{"sword", "banhammer"}
	assert.Error(t, cfg.Validate())
}

func TestValidateEventBuffer(t *testing.T) {
	cfg := validConfig()
	cfg.Session.EventBuffer = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingFormat(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		cfg := validConfig()
		cfg.Logging.Format = format
		assert.NoError(t, cfg.Validate(), "format %q should be valid", format)
	}
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestValidateDevBackendPort(t *testing.T) {
	cfg := validConfig()
	cfg.DevBackend.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.DevBackend.Port = 65536
	assert.Error(t, cfg.Validate())
}

func TestWeaponsTyped(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t,
		[]protocol.Weapon{protocol.WeaponSword, protocol.WeaponAxe, protocol.WeaponSpear},
		cfg.Session.Weapons(),
	)
}

// Property-based tests

func TestPropertyValidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		cfg := validConfig()
		cfg.DevBackend.Port = port
		if err := cfg.Validate(); err != nil {
			t.Fatalf("valid port %d rejected: %v", port, err)
		}
	})
}

func TestPropertyInvalidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.OneOf(
			rapid.IntRange(-1000, 0),
			rapid.IntRange(65536, 100000),
		).Draw(t, "port")
		cfg := validConfig()
		cfg.DevBackend.Port = port
		if cfg.Validate() == nil {
			t.Fatalf("invalid port %d accepted", port)
		}
	})
}

func TestPropertyPositiveIntervalsAccepted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := validConfig()
		cfg.Session.PollInterval = time.Duration(rapid.Int64Range(1, int64(time.Minute)).Draw(t, "poll"))
		cfg.Session.PositionTickInterval = time.Duration(rapid.Int64Range(1, int64(time.Second)).Draw(t, "tick"))
		cfg.Session.HeartbeatInterval = time.Duration(rapid.Int64Range(1, int64(time.Minute)).Draw(t, "heartbeat"))
		if err := cfg.Validate(); err != nil {
			t.Fatalf("valid intervals rejected: %v", err)
		}
	})
}

func TestPropertyWeaponOrderRejectsUnknown(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		weapon := rapid.StringMatching(`[a-z]{4,12}`).Draw(t, "weapon")
		if protocol.Weapon(weapon).Valid() {
			t.Skip()
		}
		cfg := validConfig()
		cfg.Session.WeaponOrder = []string{weapon}
		if cfg.Validate() == nil {
			t.Fatalf("unknown weapon %q accepted", weapon)
		}
	})
}
