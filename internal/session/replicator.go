package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/melee/internal/channel"
	"github.com/cory-johannsen/melee/internal/protocol"
)

// Replicator emits outgoing action messages. Discrete events go out
// immediately, one message per event, in input order (the single channel
// guarantees in-order delivery per sender). Continuous position state is
// sampled on a fixed tick and is explicitly lossy: a missed sample is
// superseded by the next, never retried.
type Replicator struct {
	ch     *channel.Channel
	state  *State
	tick   time.Duration
	logger *zap.Logger

	mu     sync.Mutex
	sample *positionSample
}

type positionSample struct {
	position    protocol.Vec3
	orientation protocol.Vec3
}

// NewReplicator creates a replicator sending through the given channel.
//
// Precondition: ch, state, and logger must be non-nil; tick must be positive.
func NewReplicator(ch *channel.Channel, state *State, tick time.Duration, logger *zap.Logger) *Replicator {
	return &Replicator{
		ch:     ch,
		state:  state,
		tick:   tick,
		logger: logger,
	}
}

// SendAction replicates one discrete action immediately.
//
// Precondition: kind must be a valid non-move action type; a room must be
// held.
func (r *Replicator) SendAction(kind protocol.ActionType, targetObjectID string) error {
	if !r.state.InRoom() {
		return ErrNoRoom
	}
	return r.ch.Send(protocol.PlayerAction{
		ActionType:     kind,
		Actor:          r.state.Identity().ID,
		TargetObjectID: targetObjectID,
	})
}

// UpdatePosition records the latest local position sample. Only the newest
// sample at each tick is sent.
func (r *Replicator) UpdatePosition(position, orientation protocol.Vec3) {
	r.mu.Lock()
	r.sample = &positionSample{position: position, orientation: orientation}
	r.mu.Unlock()
}

// Run drives the position tick loop until the context is cancelled. Ticks
// with no fresh sample, or outside a room, send nothing.
func (r *Replicator) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.flush()
		}
	}
}

func (r *Replicator) flush() {
	r.mu.Lock()
	sample := r.sample
	r.sample = nil
	r.mu.Unlock()

	if sample == nil || !r.state.InRoom() {
		return
	}
	err := r.ch.Send(protocol.PlayerAction{
		ActionType:  protocol.ActionMove,
		Actor:       r.state.Identity().ID,
		Position:    &sample.position,
		Orientation: &sample.orientation,
	})
	if err != nil {
		// The next sample supersedes this one.
		r.logger.Debug("position sample dropped", zap.Error(err))
	}
}
