package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/melee/internal/backend"
	"github.com/cory-johannsen/melee/internal/channel"
	"github.com/cory-johannsen/melee/internal/config"
	"github.com/cory-johannsen/melee/internal/protocol"
)

// Core is the process-scoped session context: it owns the persistent
// channel, the registrar, session state, and the event stream, with an
// explicit Start/Shutdown contract. Construct exactly one Core per process;
// a second Core's Start fails as a duplicate without disturbing the first.
type Core struct {
	identity protocol.Identity
	state    *State
	events   *bus
	ch       *channel.Channel
	reg      *Registrar
	manager  *Manager
	repl     *Replicator
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New wires a session core from configuration. The guard is the process
// scope: every Core sharing it competes for channel ownership, and a nil
// guard gets a private one (useful for multi-client tests). The coordinator
// is injected so tests can substitute an in-process backend.
//
// Precondition: identity.ID must be non-empty; coord and logger must be
// non-nil; the configuration must have passed validation.
func New(g *Guard, backendCfg config.BackendConfig, sessCfg config.SessionConfig, identity protocol.Identity, coord backend.Coordinator, logger *zap.Logger) *Core {
	if g == nil {
		g = NewGuard()
	}
	c := &Core{
		identity: identity,
		state:    NewState(identity),
		events:   newBus(sessCfg.EventBuffer, logger),
		logger:   logger,
	}

	rt := &router{
		state:   c.state,
		events:  c.events,
		coord:   coord,
		logger:  logger,
		timeout: backendCfg.RequestTimeout,
	}

	c.ch = channel.New(backendCfg.WebsocketURL, identity, sessCfg.HeartbeatInterval, channel.Callbacks{
		OnConnected: func() {
			logger.Debug("registration acknowledged by backend")
		},
		OnMessage: rt.handle,
		OnError: func(err error) {
			// Channel errors are non-fatal: raised as events, never tearing
			// down session state by themselves.
			c.events.publish(ErrorEvent{Err: err})
		},
		OnDisconnected: func(err error) {
			c.reg.HandleDisconnect(err)
			c.events.publish(Disconnected{Err: err})
		},
	}, logger)

	c.reg = NewRegistrar(g, c.ch, logger)

	p := newPoller(coord, c.state, c.events, sessCfg.PollInterval, backendCfg.RequestTimeout, logger)
	rt.poller = p

	c.manager = &Manager{
		coord:        coord,
		reg:          c.reg,
		ch:           c.ch,
		state:        c.state,
		events:       c.events,
		poller:       p,
		resolver:     NewWeaponResolver(sessCfg.Weapons()),
		logger:       logger,
		leaveTimeout: sessCfg.LeaveTimeout,
	}

	c.repl = NewReplicator(c.ch, c.state, sessCfg.PositionTickInterval, logger)
	return c
}

// Start registers with the coordination backend and begins the position tick
// loop. Room operations are permitted once Start returns nil.
//
// Postcondition: On error, no goroutines are left running and the channel is
// closed or was never opened.
func (c *Core) Start(ctx context.Context) error {
	if err := c.reg.Connect(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.repl.Run(runCtx)
	return nil
}

// Shutdown leaves the current room best-effort (bounded by the configured
// leave timeout) and tears the channel down. Never blocks indefinitely.
func (c *Core) Shutdown(ctx context.Context) {
	if err := c.manager.LeaveRoom(ctx); err != nil {
		c.logger.Warn("leave on shutdown failed", zap.Error(err))
	}

	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	c.reg.Close()
	c.logger.Info("session core shut down")
}

// Events returns the presentation event stream. A single consumer must
// drain it; a saturated consumer drops events.
func (c *Core) Events() <-chan Event { return c.events.Events() }

// Manager returns the room lifecycle manager.
func (c *Core) Manager() *Manager { return c.manager }

// Replicator returns the action replicator.
func (c *Core) Replicator() *Replicator { return c.repl }

// State returns the session state cache.
func (c *Core) State() *State { return c.state }

// Registrar returns the connection registrar.
func (c *Core) Registrar() *Registrar { return c.reg }
