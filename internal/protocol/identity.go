package protocol

// Identity is the opaque stable participant identifier plus an optional
// display name. Created once per process lifetime and never mutated.
type Identity struct {
	ID          string
	DisplayName string
}
