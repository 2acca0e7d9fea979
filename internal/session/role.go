package session

import "github.com/cory-johannsen/melee/internal/protocol"

// Role is a participant's derived position in a room. It is always recomputed
// from the authoritative join-order list and never cached divergently.
type Role int

// Role values. The first two joiners act in the simulation; later joiners
// observe only.
const (
	RoleNone Role = iota
	RoleFighter1
	RoleFighter2
	RoleSpectator
)

// String returns the role name for logging.
func (r Role) String() string {
	switch r {
	case RoleFighter1:
		return "fighter1"
	case RoleFighter2:
		return "fighter2"
	case RoleSpectator:
		return "spectator"
	default:
		return "none"
	}
}

// Active reports whether the role may act in the simulation.
func (r Role) Active() bool {
	return r == RoleFighter1 || r == RoleFighter2
}

// RoleForIndex maps a join-order index to a role.
func RoleForIndex(i int) Role {
	switch i {
	case 0:
		return RoleFighter1
	case 1:
		return RoleFighter2
	default:
		return RoleSpectator
	}
}

// RoleOf derives the role of the given participant from the room's join
// order, or RoleNone when the participant is not in the room.
func RoleOf(room *protocol.Room, participantID string) Role {
	if room == nil {
		return RoleNone
	}
	for i, id := range room.CurrentPlayers {
		if id == participantID {
			return RoleForIndex(i)
		}
	}
	return RoleNone
}
