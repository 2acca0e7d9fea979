// Package session implements the client-side multiplayer session
// synchronization core: participant registration, room lifecycle, message
// routing, reconciliation polling, weapon conflict resolution, and action
// replication. Presentation collaborators consume the typed events published
// here and issue commands through Core and Manager.
package session

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/melee/internal/protocol"
)

// Event is the closed set of presentation-layer events published by the core.
type Event interface{ isEvent() }

// RoomCreated fires after a successful create-room operation.
type RoomCreated struct {
	Room *protocol.Room
}

// RoomJoined fires once the local participant holds a room snapshot,
// whether by creating or joining.
type RoomJoined struct {
	Room *protocol.Room
	Role Role
}

// RoomLeft fires after leave-room completes and state is cleared.
type RoomLeft struct {
	JoinCode string
}

// RoomListUpdated carries the latest room browser snapshot.
type RoomListUpdated struct {
	Rooms []protocol.Room
}

// ActionReceived delivers a remote participant's replicated action.
type ActionReceived struct {
	Action protocol.PlayerAction
}

// StateUpdated fires when authoritative room state is folded in, from a
// channel snapshot or a reconciliation poll.
type StateUpdated struct {
	Room         *protocol.Room
	Participants []protocol.ParticipantSnapshot
	Objects      []protocol.ObjectSnapshot
}

// GameStarted fires on the authoritative start notification.
type GameStarted struct {
	JoinCode string
}

// NamesUpdated fires when the participant name table changes.
type NamesUpdated struct {
	Names map[string]string
}

// ErrorEvent surfaces a non-fatal channel or backend error.
type ErrorEvent struct {
	Err error
}

// Disconnected fires when the persistent channel drops. Session state is not
// cleared; the caller decides whether to leave or reconnect.
type Disconnected struct {
	Err error
}

func (RoomCreated) isEvent()     {}
func (RoomJoined) isEvent()      {}
func (RoomLeft) isEvent()        {}
func (RoomListUpdated) isEvent() {}
func (ActionReceived) isEvent()  {}
func (StateUpdated) isEvent()    {}
func (GameStarted) isEvent()     {}
func (NamesUpdated) isEvent()    {}
func (ErrorEvent) isEvent()      {}
func (Disconnected) isEvent()    {}

// bus delivers events to the single presentation consumer on a buffered
// channel. A saturated consumer drops events rather than blocking the
// receive loop.
type bus struct {
	out    chan Event
	logger *zap.Logger
}

func newBus(buffer int, logger *zap.Logger) *bus {
	return &bus{
		out:    make(chan Event, buffer),
		logger: logger,
	}
}

// Events returns the consumer channel.
func (b *bus) Events() <-chan Event { return b.out }

func (b *bus) publish(ev Event) {
	select {
	case b.out <- ev:
	default:
		b.logger.Warn("event consumer saturated, dropping event",
			zap.String("event", eventName(ev)),
		)
	}
}

func eventName(ev Event) string {
	switch ev.(type) {
	case RoomCreated:
		return "room_created"
	case RoomJoined:
		return "room_joined"
	case RoomLeft:
		return "room_left"
	case RoomListUpdated:
		return "room_list_updated"
	case ActionReceived:
		return "action_received"
	case StateUpdated:
		return "state_updated"
	case GameStarted:
		return "game_started"
	case NamesUpdated:
		return "names_updated"
	case ErrorEvent:
		return "error"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
