package protocol

// Weapon is one of the small fixed set of mutually exclusive capabilities an
// active participant may hold. The zero value means no weapon is assigned.
type Weapon string

// Weapon values. At most one active participant per room holds a given
// non-empty value at any time; the resolver enforces this best-effort.
const (
	WeaponNone  Weapon = ""
	WeaponSword Weapon = "sword"
	WeaponAxe   Weapon = "axe"
	WeaponSpear Weapon = "spear"
)

// DefaultWeaponOrder is the candidate order used when granting weapons:
// each requester receives the first entry not held by another active
// participant.
var DefaultWeaponOrder = []Weapon{WeaponSword, WeaponAxe, WeaponSpear}

// Valid reports whether w is a known weapon value (including none).
func (w Weapon) Valid() bool {
	switch w {
	case WeaponNone, WeaponSword, WeaponAxe, WeaponSpear:
		return true
	}
	return false
}
