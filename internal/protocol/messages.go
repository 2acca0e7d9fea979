package protocol

// Channel message type identifiers as they appear on the wire in the
// envelope's "type" field.
const (
	TypeConnect      = "CONNECT"
	TypeJoinRoom     = "JOIN_ROOM"
	TypeRoomUpdate   = "ROOM_UPDATE"
	TypePlayerAction = "PLAYER_ACTION"
	TypeStateUpdate  = "STATE_UPDATE"
	TypeError        = "ERROR"
	TypeHeartbeat    = "HEARTBEAT"
	TypeGameStart    = "GAME_START"
)

// RoomUpdate actions.
const (
	RoomActionPlayerJoined = "player_joined"
	RoomActionPlayerLeft   = "player_left"
)

// ActionType identifies a discrete replicated action.
type ActionType string

// Action kinds replicated between participants.
const (
	ActionMove       ActionType = "move"
	ActionGrab       ActionType = "grab"
	ActionRelease    ActionType = "release"
	ActionCut        ActionType = "cut"
	ActionBreak      ActionType = "break"
	ActionWeaponSwap ActionType = "weapon_swap"
)

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionMove, ActionGrab, ActionRelease, ActionCut, ActionBreak, ActionWeaponSwap:
		return true
	}
	return false
}

// Message is the closed set of channel payloads. Each protocol message kind
// decodes into exactly one concrete type; handlers never re-parse envelopes.
type Message interface {
	messageType() string
}

// Connected acknowledges registration after the channel opens.
type Connected struct{}

// JoinRoom announces the local participant's presence in a room on the
// channel. RoomID carries the join code (the code-keyed protocol variant).
type JoinRoom struct {
	RoomID      string `json:"room_id"`
	DisplayName string `json:"display_name"`
}

// JoinRoomResponse is the inbound response variant of JOIN_ROOM, confirming
// channel membership with a room snapshot and participant details.
type JoinRoomResponse struct {
	Success      bool                  `json:"success"`
	Room         *Room                 `json:"room,omitempty"`
	Participants []ParticipantSnapshot `json:"participants,omitempty"`
}

// RoomUpdate notifies membership changes. Participant is an optional full
// snapshot letting late observers spawn the newcomer without a round trip.
type RoomUpdate struct {
	Action        string               `json:"action"`
	ParticipantID string               `json:"participant_id"`
	DisplayName   string               `json:"display_name,omitempty"`
	Participant   *ParticipantSnapshot `json:"participant_snapshot,omitempty"`
}

// PlayerAction replicates one discrete action or one position sample.
type PlayerAction struct {
	ActionType     ActionType `json:"action_type"`
	Actor          string     `json:"actor"`
	TargetObjectID string     `json:"target_object_id,omitempty"`
	Position       *Vec3      `json:"position,omitempty"`
	Orientation    *Vec3      `json:"orientation,omitempty"`
	Weapon         Weapon     `json:"weapon,omitempty"`
}

// StateUpdate carries a full periodic room state snapshot.
type StateUpdate struct {
	Room         *Room                 `json:"room,omitempty"`
	Participants []ParticipantSnapshot `json:"participants"`
	Objects      []ObjectSnapshot      `json:"objects"`
}

// ErrorMessage surfaces a backend-reported channel error.
type ErrorMessage struct {
	Error string `json:"error"`
}

// Heartbeat keeps the channel alive; it is echoed by both sides.
type Heartbeat struct{}

// GameStart signals the transition to active play.
type GameStart struct{}

// TypeOf returns the wire type identifier of a message, for logging.
func TypeOf(m Message) string { return m.messageType() }

func (Connected) messageType() string        { return TypeConnect }
func (JoinRoom) messageType() string         { return TypeJoinRoom }
func (JoinRoomResponse) messageType() string { return TypeJoinRoom }
func (RoomUpdate) messageType() string       { return TypeRoomUpdate }
func (PlayerAction) messageType() string     { return TypePlayerAction }
func (StateUpdate) messageType() string      { return TypeStateUpdate }
func (ErrorMessage) messageType() string     { return TypeError }
func (Heartbeat) messageType() string        { return TypeHeartbeat }
func (GameStart) messageType() string        { return TypeGameStart }
