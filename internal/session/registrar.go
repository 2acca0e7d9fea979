package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/melee/internal/channel"
)

// ErrNotRegistered is returned by room operations attempted before
// registration succeeds. Requests are never silently queued.
var ErrNotRegistered = errors.New("not connected to coordination backend")

// ErrDuplicateRegistrar is returned when a second registrar instance detects
// an already-active primary. The duplicate destroys itself; the primary's
// channel stays open.
var ErrDuplicateRegistrar = errors.New("another registrar instance is active")

// ConnState is the registrar's connection state.
type ConnState int

// Registrar states. Registered is sticky: a channel drop after registration
// clears connectivity but keeps the flag so a later reconnect need not
// re-validate identity. Known limitation: the backend is assumed to accept
// the same identity again without re-registration.
const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateRegistered
)

// String returns the state name for logging.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRegistered:
		return "registered"
	default:
		return "disconnected"
	}
}

// Guard is the process-scoped ownership flag distinguishing the
// authoritative registrar instance from transient duplicates. Create one per
// process and hand it to every Core constructed in that process.
type Guard struct {
	mu     sync.Mutex
	active *Registrar
}

// NewGuard creates an unclaimed ownership guard.
func NewGuard() *Guard { return &Guard{} }

// claim makes r the active instance if no other instance holds the guard.
func (g *Guard) claim(r *Registrar) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active != nil && g.active != r {
		return false
	}
	g.active = r
	return true
}

// release clears the guard only when held by r.
func (g *Guard) release(r *Registrar) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == r {
		g.active = nil
	}
}

// Registrar opens the persistent channel at startup and tracks whether
// registration succeeded before permitting room operations. Registration is
// implicit: connecting with a stable participant identifier registers it.
type Registrar struct {
	guard  *Guard
	ch     *channel.Channel
	logger *zap.Logger

	mu         sync.Mutex
	state      ConnState
	registered bool // sticky across channel drops
	owner      bool
}

// NewRegistrar creates a registrar bound to the given channel and ownership
// guard.
//
// Precondition: g, ch, and logger must be non-nil.
func NewRegistrar(g *Guard, ch *channel.Channel, logger *zap.Logger) *Registrar {
	return &Registrar{
		guard:  g,
		ch:     ch,
		logger: logger,
	}
}

// Connect claims singleton ownership and opens the persistent channel. A
// successful channel-open transitions to Registered. A duplicate instance
// returns ErrDuplicateRegistrar without touching the primary's channel.
//
// Postcondition: On success, State() == StateRegistered and the channel's
// receive loop is running.
func (r *Registrar) Connect(ctx context.Context) error {
	if !r.guard.claim(r) {
		r.logger.Warn("duplicate registrar instance, destroying self")
		return ErrDuplicateRegistrar
	}

	r.mu.Lock()
	if r.state != StateDisconnected {
		r.mu.Unlock()
		return fmt.Errorf("registrar already %s", r.state)
	}
	r.owner = true
	r.state = StateConnecting
	r.mu.Unlock()

	if err := r.ch.Connect(ctx); err != nil {
		// Transient connecting error returns to Disconnected.
		r.mu.Lock()
		r.state = StateDisconnected
		r.mu.Unlock()
		return fmt.Errorf("opening channel: %w", err)
	}

	r.mu.Lock()
	r.state = StateRegistered
	r.registered = true
	r.mu.Unlock()

	r.logger.Info("registered with coordination backend")
	return nil
}

// State returns the current connection state.
func (r *Registrar) State() ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Registered reports the sticky registration flag.
func (r *Registrar) Registered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registered
}

// Connected reports whether the channel is currently open.
func (r *Registrar) Connected() bool {
	return r.ch.IsConnected()
}

// EnsureRegistered fails immediately with ErrNotRegistered when room
// operations are not yet permitted.
func (r *Registrar) EnsureRegistered() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.registered {
		return ErrNotRegistered
	}
	return nil
}

// HandleDisconnect records a dropped channel: connectivity is lost but the
// Registered flag stays sticky. Reconnection is explicit, never automatic.
func (r *Registrar) HandleDisconnect(err error) {
	r.mu.Lock()
	wasRegistered := r.registered
	r.state = StateDisconnected
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("channel disconnected",
			zap.Error(err),
			zap.Bool("still_registered", wasRegistered),
		)
	} else {
		r.logger.Info("channel closed", zap.Bool("still_registered", wasRegistered))
	}
}

// Close tears down the channel only when this instance holds ownership. A
// duplicate instance destroying itself leaves the primary's channel open and
// its pending sends intact.
func (r *Registrar) Close() {
	r.mu.Lock()
	owner := r.owner
	r.owner = false
	if owner {
		r.state = StateDisconnected
	}
	r.mu.Unlock()

	if !owner {
		return
	}
	r.ch.Close()
	r.guard.release(r)
}
