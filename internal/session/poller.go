package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/melee/internal/backend"
)

// poller is the reconciliation failsafe: while a room is held and not yet
// started, it re-fetches room details on a fixed interval and folds them in
// without re-announcing channel join. It stops the moment the room is left
// or the started flag becomes true. It is never the primary state path.
type poller struct {
	coord    backend.Coordinator
	state    *State
	events   *bus
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newPoller(coord backend.Coordinator, state *State, events *bus, interval, timeout time.Duration, logger *zap.Logger) *poller {
	return &poller{
		coord:    coord,
		state:    state,
		events:   events,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// start begins polling for the currently held room. A running poll for a
// previous room is stopped first.
func (p *poller) start() {
	p.stop()

	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(ctx)
}

// stop cancels any running poll loop.
func (p *poller) stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.refresh(ctx) {
				return
			}
		}
	}
}

// refresh performs one reconciliation fetch. Returns false when polling
// should end: room left or session started.
func (p *poller) refresh(ctx context.Context) bool {
	code := p.state.JoinCode()
	if code == "" || p.state.Started() {
		return false
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	room, err := p.coord.RoomDetails(fetchCtx, code)
	cancel()
	if err != nil {
		// The poller is a safety net; a failed poll just waits for the next.
		p.logger.Debug("reconciliation poll failed",
			zap.String("join_code", code),
			zap.Error(err),
		)
		return true
	}

	if room.Started {
		// Compensate for a missed GAME_START channel event. MarkStarted
		// flips the flag exactly once even when racing the router.
		startedNow := p.state.MarkStarted()
		if p.state.FoldRoom(room) {
			p.events.publish(StateUpdated{Room: room.Clone()})
		}
		if startedNow {
			p.events.publish(GameStarted{JoinCode: code})
		}
		return false
	}

	if p.state.FoldRoom(room) {
		p.events.publish(StateUpdated{Room: room.Clone()})
	}
	return true
}
