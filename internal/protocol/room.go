// Package protocol defines the wire types shared by the session core and the
// coordination backend: the room snapshot, participant and object snapshots,
// the weapon set, and the channel message envelope with one typed payload per
// message kind.
package protocol

// Room is the authoritative snapshot of a shared session container.
// Participant order in CurrentPlayers is join order and determines roles.
type Room struct {
	ID              string   `json:"id"`
	JoinCode        string   `json:"join_code"`
	Name            string   `json:"name"`
	HostID          string   `json:"host_id"`
	MaxParticipants int      `json:"max_participants"`
	CurrentPlayers  []string `json:"current_players"`
	Private         bool     `json:"private"`
	Started         bool     `json:"started"`
}

// HasParticipant reports whether the given participant id is in the room.
func (r *Room) HasParticipant(id string) bool {
	for _, p := range r.CurrentPlayers {
		if p == id {
			return true
		}
	}
	return false
}

// IsFull reports whether the room has reached its participant capacity.
func (r *Room) IsFull() bool {
	return r.MaxParticipants > 0 && len(r.CurrentPlayers) >= r.MaxParticipants
}

// Clone returns a deep copy of the room snapshot.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	dup := *r
	dup.CurrentPlayers = append([]string(nil), r.CurrentPlayers...)
	return &dup
}

// Vec3 is a position or euler orientation in world space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ParticipantSnapshot carries enough of a participant's state for a late
// observer to spawn them without a follow-up round trip.
type ParticipantSnapshot struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Position    *Vec3  `json:"position,omitempty"`
	Orientation *Vec3  `json:"orientation,omitempty"`
	Weapon      Weapon `json:"weapon,omitempty"`
}

// ObjectSnapshot is the replicated state of an interactable world object.
type ObjectSnapshot struct {
	ID          string `json:"id"`
	HeldBy      string `json:"held_by,omitempty"`
	Broken      bool   `json:"broken,omitempty"`
	Position    *Vec3  `json:"position,omitempty"`
	Orientation *Vec3  `json:"orientation,omitempty"`
}
