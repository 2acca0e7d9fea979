package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/melee/internal/protocol"
)

func newTestPoller(t *testing.T, coord *stubCoordinator, interval time.Duration) (*poller, *State, *bus) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	state := NewState(protocol.Identity{ID: "local"})
	events := newBus(64, logger)
	return newPoller(coord, state, events, interval, time.Second, logger), state, events
}

func TestRefreshWithoutRoom(t *testing.T) {
	coord := &stubCoordinator{}
	p, _, _ := newTestPoller(t, coord, time.Hour)

	assert.False(t, p.refresh(context.Background()))
	assert.Equal(t, 0, coord.calls())
}

func TestRefreshAfterLocalStart(t *testing.T) {
	coord := &stubCoordinator{}
	p, state, _ := newTestPoller(t, coord, time.Hour)
	state.SetRoom(&protocol.Room{JoinCode: "ABC123", CurrentPlayers: []string{"local"}})
	state.MarkStarted()

	assert.False(t, p.refresh(context.Background()))
	assert.Equal(t, 0, coord.calls(), "a started session is never polled")
}

func TestRefreshToleratesFetchFailure(t *testing.T) {
	coord := &stubCoordinator{detailsErr: errors.New("backend down")}
	p, state, events := newTestPoller(t, coord, time.Hour)
	state.SetRoom(&protocol.Room{JoinCode: "ABC123", CurrentPlayers: []string{"local"}})

	assert.True(t, p.refresh(context.Background()), "a failed poll waits for the next")
	assert.Empty(t, drainEvents(events))
}

func TestRefreshFoldsSnapshot(t *testing.T) {
	coord := &stubCoordinator{}
	coord.setRoom(&protocol.Room{JoinCode: "ABC123", CurrentPlayers: []string{"local", "p2"}})
	p, state, events := newTestPoller(t, coord, time.Hour)
	state.SetRoom(&protocol.Room{JoinCode: "ABC123", CurrentPlayers: []string{"local"}})

	assert.True(t, p.refresh(context.Background()))
	assert.Equal(t, []string{"local", "p2"}, state.Room().CurrentPlayers)

	evs := drainEvents(events)
	assert.Len(t, evs, 1)
	assert.IsType(t, StateUpdated{}, evs[0])
}

func TestRefreshDetectsMissedStart(t *testing.T) {
	coord := &stubCoordinator{}
	coord.setRoom(&protocol.Room{JoinCode: "ABC123", CurrentPlayers: []string{"local"}, Started: true})
	p, state, events := newTestPoller(t, coord, time.Hour)
	state.SetRoom(&protocol.Room{JoinCode: "ABC123", CurrentPlayers: []string{"local"}})

	assert.False(t, p.refresh(context.Background()), "polling ends once started")
	assert.True(t, state.Started())

	started := 0
	for _, ev := range drainEvents(events) {
		if _, ok := ev.(GameStarted); ok {
			started++
		}
	}
	assert.Equal(t, 1, started)

	// A second refresh never re-publishes the start.
	assert.False(t, p.refresh(context.Background()))
	for _, ev := range drainEvents(events) {
		if _, ok := ev.(GameStarted); ok {
			t.Fatal("start published twice")
		}
	}
}

func TestPollerLoopStops(t *testing.T) {
	coord := &stubCoordinator{}
	coord.setRoom(&protocol.Room{JoinCode: "ABC123", CurrentPlayers: []string{"local"}})
	p, state, _ := newTestPoller(t, coord, 10*time.Millisecond)
	state.SetRoom(&protocol.Room{JoinCode: "ABC123", CurrentPlayers: []string{"local"}})

	p.start()
	assert.Eventually(t, func() bool { return coord.calls() > 0 }, time.Second, 5*time.Millisecond)

	p.stop()
	calls := coord.calls()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, coord.calls(), calls+1, "stopped poller must not keep polling")
}

func TestPollerRestartReplacesLoop(t *testing.T) {
	coord := &stubCoordinator{}
	coord.setRoom(&protocol.Room{JoinCode: "ABC123", CurrentPlayers: []string{"local"}})
	p, state, _ := newTestPoller(t, coord, 10*time.Millisecond)
	state.SetRoom(&protocol.Room{JoinCode: "ABC123", CurrentPlayers: []string{"local"}})

	p.start()
	p.start() // must replace, not stack
	defer p.stop()

	assert.Eventually(t, func() bool { return coord.calls() > 0 }, time.Second, 5*time.Millisecond)
}
