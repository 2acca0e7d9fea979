package session

import (
	"github.com/cory-johannsen/melee/internal/protocol"
)

// WeaponResolver assigns mutually exclusive weapons to active participants
// without collision. Granting is optimistic: the grant is applied locally and
// broadcast; when two participants race for the same weapon the
// server-observed order wins (last write, no rollback). That inconsistency
// window is accepted behavior, not a guaranteed reservation.
type WeaponResolver struct {
	order []protocol.Weapon
}

// NewWeaponResolver creates a resolver with the given candidate order.
//
// Precondition: order must be non-empty and contain only valid weapons.
func NewWeaponResolver(order []protocol.Weapon) *WeaponResolver {
	return &WeaponResolver{order: append([]protocol.Weapon(nil), order...)}
}

// Order returns the candidate order.
func (r *WeaponResolver) Order() []protocol.Weapon {
	return append([]protocol.Weapon(nil), r.order...)
}

// Resolve grants the first candidate not currently held by another active
// participant. When the set is exhausted it degrades to the first candidate
// rather than failing; the duplicate resolves via last-write-wins.
func (r *WeaponResolver) Resolve(held []protocol.Weapon) protocol.Weapon {
	taken := make(map[protocol.Weapon]bool, len(held))
	for _, w := range held {
		taken[w] = true
	}
	for _, candidate := range r.order {
		if !taken[candidate] {
			return candidate
		}
	}
	return r.order[0]
}
