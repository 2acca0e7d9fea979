package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/melee/internal/backend"
	"github.com/cory-johannsen/melee/internal/channel"
	"github.com/cory-johannsen/melee/internal/protocol"
)

// ErrNoRoom is returned by operations that require a held room.
var ErrNoRoom = errors.New("not in a room")

// Manager issues the request/response room operations and transitions the
// persistent channel into joined state on success. All operations require
// the registrar to report Registered.
type Manager struct {
	coord    backend.Coordinator
	reg      *Registrar
	ch       *channel.Channel
	state    *State
	events   *bus
	poller   *poller
	resolver *WeaponResolver
	logger   *zap.Logger

	leaveTimeout time.Duration

	mu            sync.Mutex
	announcedCode string // join code the channel has announced, "" if none
}

// CreateRoom creates a room, stores its snapshot, and announces join on the
// channel. The creator is always first in join order and becomes Fighter1.
//
// Precondition: the registrar must report Registered.
// Postcondition: On success the room is held, the poller is running, and
// RoomCreated/RoomJoined events are published.
func (m *Manager) CreateRoom(ctx context.Context, name string, maxParticipants int, private bool, password, displayName string) (*protocol.Room, error) {
	if err := m.reg.EnsureRegistered(); err != nil {
		return nil, err
	}

	identity := m.state.Identity()
	room, err := m.coord.CreateRoom(ctx, backend.CreateRoomRequest{
		Name:            name,
		MaxParticipants: maxParticipants,
		Private:         private,
		Password:        password,
		CreatorID:       identity.ID,
		DisplayName:     displayName,
	})
	if err != nil {
		return nil, err
	}

	m.state.SetRoom(room)
	m.state.SetName(identity.ID, displayName)
	m.announceJoin(room.JoinCode, displayName)

	m.logger.Info("room created",
		zap.String("join_code", room.JoinCode),
		zap.String("name", room.Name),
		zap.Int("max_participants", room.MaxParticipants),
	)

	m.events.publish(RoomCreated{Room: room.Clone()})
	m.events.publish(RoomJoined{Room: room.Clone(), Role: m.state.Role()})
	m.poller.start()
	return room, nil
}

// JoinRoom joins the room identified by code, fetches its details, derives
// the local role from join order, and announces join on the channel unless
// this room was already announced.
//
// Precondition: the registrar must report Registered.
// Postcondition: On success the room is held and the poller is running.
func (m *Manager) JoinRoom(ctx context.Context, code, password, displayName string) (*protocol.Room, error) {
	if err := m.reg.EnsureRegistered(); err != nil {
		return nil, err
	}

	identity := m.state.Identity()
	err := m.coord.JoinRoom(ctx, code, backend.JoinRoomRequest{
		ParticipantID: identity.ID,
		DisplayName:   displayName,
		Password:      password,
	})
	if err != nil {
		// Capacity and password checks are the backend's; we surface them.
		return nil, err
	}

	room, err := m.coord.RoomDetails(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("fetching joined room: %w", err)
	}

	m.state.SetRoom(room)
	m.state.SetName(identity.ID, displayName)

	m.mu.Lock()
	alreadyAnnounced := m.announcedCode == room.JoinCode
	m.mu.Unlock()
	if !alreadyAnnounced {
		m.announceJoin(room.JoinCode, displayName)
	}

	role := m.state.Role()
	m.logger.Info("room joined",
		zap.String("join_code", room.JoinCode),
		zap.String("role", role.String()),
		zap.Int("participants", len(room.CurrentPlayers)),
	)

	m.events.publish(RoomJoined{Room: room.Clone(), Role: role})
	if !room.Started {
		m.poller.start()
	}
	return room, nil
}

// LeaveRoom leaves the current room. The leave request is best-effort; its
// failure is logged, not fatal. State is always cleared, the poller stopped,
// the channel's room association dropped, and RoomLeft published.
//
// Postcondition: No room is held. Returns nil when no room was held.
func (m *Manager) LeaveRoom(ctx context.Context) error {
	code := m.state.JoinCode()
	if code == "" {
		return nil
	}

	identity := m.state.Identity()
	leaveCtx, cancel := context.WithTimeout(ctx, m.leaveTimeout)
	if err := m.coord.LeaveRoom(leaveCtx, code, identity.ID); err != nil {
		m.logger.Warn("leave request failed, clearing local state anyway",
			zap.String("join_code", code),
			zap.Error(err),
		)
	}
	cancel()

	m.poller.stop()
	m.mu.Lock()
	m.announcedCode = ""
	m.mu.Unlock()
	m.state.Clear()

	m.logger.Info("room left", zap.String("join_code", code))
	m.events.publish(RoomLeft{JoinCode: code})
	return nil
}

// StartGame requests the session start. Host-only; the backend enforces the
// host check. The authoritative transition is the later GAME_START channel
// message, not this request's success — callers must wait for the
// GameStarted event before proceeding.
func (m *Manager) StartGame(ctx context.Context) error {
	if err := m.reg.EnsureRegistered(); err != nil {
		return err
	}
	code := m.state.JoinCode()
	if code == "" {
		return ErrNoRoom
	}

	identity := m.state.Identity()
	if err := m.coord.StartGame(ctx, code, identity.ID); err != nil {
		return err
	}
	m.logger.Info("start requested, awaiting start notification",
		zap.String("join_code", code),
	)
	return nil
}

// ListRooms fetches the room browser snapshot and publishes RoomListUpdated.
func (m *Manager) ListRooms(ctx context.Context, includePrivate bool) ([]protocol.Room, error) {
	if err := m.reg.EnsureRegistered(); err != nil {
		return nil, err
	}
	rooms, err := m.coord.ListRooms(ctx, includePrivate)
	if err != nil {
		return nil, err
	}
	m.events.publish(RoomListUpdated{Rooms: rooms})
	return rooms, nil
}

// RequestWeapon grants the local participant a weapon from the candidate
// order, applies it optimistically, and broadcasts the swap. Exhausted
// candidates degrade to the first entry; races resolve last-write-wins.
//
// Precondition: a room must be held and the local role must be active.
func (m *Manager) RequestWeapon() (protocol.Weapon, error) {
	if !m.state.InRoom() {
		return protocol.WeaponNone, ErrNoRoom
	}
	identity := m.state.Identity()
	role := m.state.Role()
	if !role.Active() {
		return protocol.WeaponNone, fmt.Errorf("role %s cannot hold weapons", role)
	}

	grant := m.resolver.Resolve(m.state.HeldWeapons(identity.ID))
	m.state.SetWeapon(identity.ID, grant)

	if err := m.ch.Send(protocol.PlayerAction{
		ActionType: protocol.ActionWeaponSwap,
		Actor:      identity.ID,
		Weapon:     grant,
	}); err != nil {
		m.logger.Warn("weapon swap broadcast failed", zap.Error(err))
	}

	m.logger.Debug("weapon granted",
		zap.String("weapon", string(grant)),
		zap.String("role", role.String()),
	)
	return grant, nil
}

// announceJoin emits the JOIN_ROOM announcement and records the association.
func (m *Manager) announceJoin(code, displayName string) {
	m.mu.Lock()
	m.announcedCode = code
	m.mu.Unlock()

	if err := m.ch.Send(protocol.JoinRoom{RoomID: code, DisplayName: displayName}); err != nil {
		// The reconciliation poller and the benign duplicate-join handling
		// cover a missed announcement.
		m.logger.Warn("join announcement failed", zap.String("join_code", code), zap.Error(err))
	}
}
