package session

import (
	"sync"

	"github.com/cory-johannsen/melee/internal/protocol"
)

// State is the process-wide session cache: local identity, current room
// snapshot, participant name table, and known weapon assignments. All methods
// are safe for concurrent use; mutation flows through the router goroutine
// and the room lifecycle operations.
type State struct {
	mu       sync.RWMutex
	identity protocol.Identity
	room     *protocol.Room
	names    map[string]string
	weapons  map[string]protocol.Weapon
}

// NewState creates an empty State for the given local identity.
//
// Precondition: identity.ID must be non-empty.
func NewState(identity protocol.Identity) *State {
	return &State{
		identity: identity,
		names:    make(map[string]string),
		weapons:  make(map[string]protocol.Weapon),
	}
}

// Identity returns the immutable local identity.
func (s *State) Identity() protocol.Identity { return s.identity }

// Room returns a copy of the current room snapshot, or nil when not in a room.
func (s *State) Room() *protocol.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room.Clone()
}

// InRoom reports whether a room is currently held.
func (s *State) InRoom() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room != nil
}

// JoinCode returns the held room's join code, or "" when not in a room.
func (s *State) JoinCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.room == nil {
		return ""
	}
	return s.room.JoinCode
}

// IsHost reports whether the local participant hosts the current room.
func (s *State) IsHost() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room != nil && s.room.HostID == s.identity.ID
}

// Started reports whether the held room's session has started.
func (s *State) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room != nil && s.room.Started
}

// Role derives the local participant's role from the authoritative join
// order. Never cached; always recomputed.
func (s *State) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return RoleOf(s.room, s.identity.ID)
}

// RoleOfParticipant derives the given participant's role from join order.
func (s *State) RoleOfParticipant(id string) Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return RoleOf(s.room, id)
}

// SetRoom replaces the held room snapshot.
func (s *State) SetRoom(room *protocol.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room.Clone()
}

// FoldRoom applies an authoritative snapshot for the held room, pruning
// name and weapon entries for departed participants. A snapshot for a
// different room is ignored to guard against stale poll responses.
func (s *State) FoldRoom(room *protocol.Room) bool {
	if room == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil || s.room.JoinCode != room.JoinCode {
		return false
	}
	s.room = room.Clone()
	present := make(map[string]bool, len(room.CurrentPlayers))
	for _, id := range room.CurrentPlayers {
		present[id] = true
	}
	for id := range s.names {
		if !present[id] {
			delete(s.names, id)
		}
	}
	for id := range s.weapons {
		if !present[id] {
			delete(s.weapons, id)
		}
	}
	return true
}

// AddParticipant appends the participant to the room's join order if absent.
func (s *State) AddParticipant(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil || id == "" {
		return
	}
	for _, p := range s.room.CurrentPlayers {
		if p == id {
			return
		}
	}
	s.room.CurrentPlayers = append(s.room.CurrentPlayers, id)
}

// RemoveParticipant drops the participant from the room, the name table, and
// the weapon table.
func (s *State) RemoveParticipant(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room != nil {
		players := s.room.CurrentPlayers[:0]
		for _, p := range s.room.CurrentPlayers {
			if p != id {
				players = append(players, p)
			}
		}
		s.room.CurrentPlayers = players
	}
	delete(s.names, id)
	delete(s.weapons, id)
}

// MarkStarted sets the held room's started flag. Returns true if the flag
// changed, so callers publish the start event exactly once.
func (s *State) MarkStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil || s.room.Started {
		return false
	}
	s.room.Started = true
	return true
}

// Clear drops all room-scoped state and returns the previous join code.
func (s *State) Clear() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := ""
	if s.room != nil {
		code = s.room.JoinCode
	}
	s.room = nil
	s.names = make(map[string]string)
	s.weapons = make(map[string]protocol.Weapon)
	return code
}

// SetName records a participant's display name. Returns true if the table
// changed.
func (s *State) SetName(id, name string) bool {
	if id == "" || name == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names[id] == name {
		return false
	}
	s.names[id] = name
	return true
}

// NameOf returns the display name for the given participant id, falling back
// to the id itself.
func (s *State) NameOf(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if name, ok := s.names[id]; ok {
		return name
	}
	return id
}

// Names returns a copy of the participant name table.
func (s *State) Names() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.names))
	for id, name := range s.names {
		out[id] = name
	}
	return out
}

// SetWeapon records a participant's weapon assignment.
func (s *State) SetWeapon(id string, w protocol.Weapon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w == protocol.WeaponNone {
		delete(s.weapons, id)
		return
	}
	s.weapons[id] = w
}

// WeaponOf returns the known weapon assignment for the participant.
func (s *State) WeaponOf(id string) protocol.Weapon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weapons[id]
}

// HeldWeapons returns the weapons held by active participants other than the
// given one. Spectators are excluded from the collision check.
func (s *State) HeldWeapons(excludeID string) []protocol.Weapon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var held []protocol.Weapon
	if s.room == nil {
		return held
	}
	for i, id := range s.room.CurrentPlayers {
		if !RoleForIndex(i).Active() || id == excludeID {
			continue
		}
		if w, ok := s.weapons[id]; ok && w != protocol.WeaponNone {
			held = append(held, w)
		}
	}
	return held
}
