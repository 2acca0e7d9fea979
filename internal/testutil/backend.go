// Package testutil provides test helpers: an in-process coordination
// backend and preconfigured session cores for integration testing.
package testutil

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/melee/internal/backend"
	"github.com/cory-johannsen/melee/internal/config"
	"github.com/cory-johannsen/melee/internal/devbackend"
	"github.com/cory-johannsen/melee/internal/protocol"
	"github.com/cory-johannsen/melee/internal/session"
)

// Backend is an in-process coordination backend bound to an ephemeral port.
type Backend struct {
	Server  *httptest.Server
	Config  config.BackendConfig
	Session config.SessionConfig
}

// StartBackend runs a coordination backend for the duration of the test.
//
// Postcondition: Returns a backend serving room operations and the channel,
// torn down automatically at test cleanup.
func StartBackend(t *testing.T) *Backend {
	t.Helper()

	logger := zaptest.NewLogger(t)
	srv := httptest.NewServer(devbackend.New(logger).Router())
	t.Cleanup(srv.Close)

	return &Backend{
		Server: srv,
		Config: config.BackendConfig{
			BaseURL:        srv.URL,
			WebsocketURL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/channel",
			RequestTimeout: 5 * time.Second,
		},
		// Intervals tightened so tests observe polling and ticking quickly.
		Session: config.SessionConfig{
			PollInterval:         50 * time.Millisecond,
			PositionTickInterval: 20 * time.Millisecond,
			HeartbeatInterval:    time.Second,
			LeaveTimeout:         time.Second,
			WeaponOrder:          []string{"sword", "axe", "spear"},
			EventBuffer:          64,
		},
	}
}

// NewCore builds an unstarted session core for the given identity, with its
// own ownership guard so several cores can coexist in one test process.
func (b *Backend) NewCore(t *testing.T, id, displayName string) *session.Core {
	t.Helper()

	logger := zaptest.NewLogger(t)
	coord := backend.NewHTTPCoordinator(b.Config, logger)
	identity := protocol.Identity{ID: id, DisplayName: displayName}
	return session.New(session.NewGuard(), b.Config, b.Session, identity, coord, logger)
}

// StartCore builds a core, connects it, and registers shutdown at cleanup.
func (b *Backend) StartCore(t *testing.T, id, displayName string) *session.Core {
	t.Helper()

	core := b.NewCore(t, id, displayName)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := core.Start(ctx); err != nil {
		t.Fatalf("starting session core %s: %v", id, err)
	}
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		core.Shutdown(shutdownCtx)
	})
	return core
}

// WaitFor drains the event stream until an event of type T arrives, failing
// the test on timeout. Other events are discarded.
func WaitFor[T session.Event](t *testing.T, events <-chan session.Event, timeout time.Duration) T {
	t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case ev := <-events:
			if typed, ok := ev.(T); ok {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}
