package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/melee/internal/backend"
	"github.com/cory-johannsen/melee/internal/protocol"
)

// benignErrorFragment marks the known duplicate-join race: a request-based
// join succeeds before the channel-based join announcement completes and the
// backend reports the participant is already present. Suppressed, not
// surfaced.
const benignErrorFragment = "already in room"

// ErrChannelJoinRejected reports that the backend refused the channel join
// announcement for the current room. The backend does not say why; the
// request-based join already succeeded, so callers recover by leaving and
// re-joining.
var ErrChannelJoinRejected = errors.New("channel join announcement rejected")

// router dispatches inbound channel messages by type and mutates session
// state. It runs on the channel's single receive goroutine, so handlers see
// messages serially. No handler may panic or abort the loop: unknown types
// and malformed payloads are logged and dropped upstream in the channel.
type router struct {
	state   *State
	events  *bus
	coord   backend.Coordinator
	poller  *poller
	logger  *zap.Logger
	timeout time.Duration
}

// handle is installed as the channel's OnMessage callback.
func (rt *router) handle(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.JoinRoomResponse:
		rt.handleJoinResponse(m)
	case protocol.RoomUpdate:
		rt.handleRoomUpdate(m)
	case protocol.PlayerAction:
		rt.handlePlayerAction(m)
	case protocol.StateUpdate:
		rt.handleStateUpdate(m)
	case protocol.ErrorMessage:
		rt.handleError(m)
	case protocol.GameStart:
		rt.handleGameStart()
	case protocol.JoinRoom:
		// Outbound-shaped announcement echoed back; nothing to fold.
	default:
		rt.logger.Warn("unhandled message type, dropping",
			zap.String("type", protocol.TypeOf(msg)),
		)
	}
}

func (rt *router) handleJoinResponse(m protocol.JoinRoomResponse) {
	if !m.Success {
		rt.logger.Warn("channel join rejected")
		rt.events.publish(ErrorEvent{Err: ErrChannelJoinRejected})
		return
	}
	if m.Room != nil {
		rt.state.FoldRoom(m.Room)
	}
	changed := false
	for _, p := range m.Participants {
		if rt.state.SetName(p.ID, p.DisplayName) {
			changed = true
		}
		if p.Weapon != protocol.WeaponNone {
			rt.state.SetWeapon(p.ID, p.Weapon)
		}
	}
	if changed {
		rt.events.publish(NamesUpdated{Names: rt.state.Names()})
	}
	if m.Room != nil {
		rt.events.publish(StateUpdated{Room: m.Room.Clone(), Participants: m.Participants})
	}
}

func (rt *router) handleRoomUpdate(m protocol.RoomUpdate) {
	switch m.Action {
	case protocol.RoomActionPlayerJoined:
		rt.state.AddParticipant(m.ParticipantID)
		changed := rt.state.SetName(m.ParticipantID, m.DisplayName)
		if m.Participant != nil {
			// Embedded snapshot: spawn the newcomer without a round trip.
			if rt.state.SetName(m.Participant.ID, m.Participant.DisplayName) {
				changed = true
			}
			if m.Participant.Weapon != protocol.WeaponNone {
				rt.state.SetWeapon(m.Participant.ID, m.Participant.Weapon)
			}
		} else {
			// No snapshot: fall back to re-fetching room details. Runs off
			// the receive loop so a slow backend cannot stall routing.
			go rt.refetchRoom()
		}
		if changed {
			rt.events.publish(NamesUpdated{Names: rt.state.Names()})
		}
		rt.events.publish(StateUpdated{Room: rt.state.Room()})

	case protocol.RoomActionPlayerLeft:
		rt.state.RemoveParticipant(m.ParticipantID)
		rt.events.publish(NamesUpdated{Names: rt.state.Names()})
		rt.events.publish(StateUpdated{Room: rt.state.Room()})

	default:
		rt.logger.Warn("unknown room update action, dropping",
			zap.String("action", m.Action),
		)
	}
}

func (rt *router) handlePlayerAction(m protocol.PlayerAction) {
	// A participant ignores echoes of its own actions.
	if m.Actor == rt.state.Identity().ID {
		return
	}
	if m.ActionType == protocol.ActionWeaponSwap {
		rt.state.SetWeapon(m.Actor, m.Weapon)
	}
	rt.events.publish(ActionReceived{Action: m})
}

func (rt *router) handleStateUpdate(m protocol.StateUpdate) {
	if m.Room != nil {
		rt.state.FoldRoom(m.Room)
	}
	changed := false
	for _, p := range m.Participants {
		if rt.state.SetName(p.ID, p.DisplayName) {
			changed = true
		}
		if p.Weapon != protocol.WeaponNone {
			rt.state.SetWeapon(p.ID, p.Weapon)
		}
	}
	if changed {
		rt.events.publish(NamesUpdated{Names: rt.state.Names()})
	}
	rt.events.publish(StateUpdated{Room: rt.state.Room(), Participants: m.Participants, Objects: m.Objects})
}

func (rt *router) handleError(m protocol.ErrorMessage) {
	if strings.Contains(strings.ToLower(m.Error), benignErrorFragment) {
		rt.logger.Debug("suppressing benign duplicate-join error",
			zap.String("error", m.Error),
		)
		return
	}
	rt.logger.Warn("backend channel error", zap.String("error", m.Error))
	rt.events.publish(ErrorEvent{Err: &ChannelError{Message: m.Error}})
}

func (rt *router) handleGameStart() {
	code := rt.state.JoinCode()
	if code == "" {
		rt.logger.Warn("start notification without a held room, dropping")
		return
	}
	rt.poller.stop()
	if rt.state.MarkStarted() {
		rt.logger.Info("session started", zap.String("join_code", code))
		rt.events.publish(GameStarted{JoinCode: code})
	}
}

// refetchRoom reloads authoritative details after a membership change that
// carried no snapshot. Failure is tolerable; the poller covers the gap.
func (rt *router) refetchRoom() {
	code := rt.state.JoinCode()
	if code == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), rt.timeout)
	defer cancel()

	room, err := rt.coord.RoomDetails(ctx, code)
	if err != nil {
		rt.logger.Debug("room refetch failed", zap.String("join_code", code), zap.Error(err))
		return
	}
	if rt.state.FoldRoom(room) {
		rt.events.publish(StateUpdated{Room: room.Clone()})
	}
}

// ChannelError wraps an error string reported by the backend on the channel.
type ChannelError struct {
	Message string
}

func (e *ChannelError) Error() string { return "channel error: " + e.Message }
