// Package backend provides the request/response client for the coordination
// backend's room operations, behind an interface so tests can substitute an
// in-process implementation.
package backend

import (
	"context"
	"errors"

	"github.com/cory-johannsen/melee/internal/protocol"
)

// Sentinel errors mapped from coordinator error codes.
var (
	// ErrRoomNotFound means no room exists for the given join code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull means the room has reached its participant capacity.
	ErrRoomFull = errors.New("room full")
	// ErrWrongPassword means a private room rejected the supplied password.
	ErrWrongPassword = errors.New("wrong room password")
	// ErrNotHost means a host-only operation was attempted by a non-host.
	ErrNotHost = errors.New("participant is not the room host")
	// ErrAlreadyStarted means the room's session is already in progress.
	ErrAlreadyStarted = errors.New("room already started")
)

// Error codes used on the wire in error response bodies.
const (
	CodeRoomNotFound   = "room_not_found"
	CodeRoomFull       = "room_full"
	CodeWrongPassword  = "wrong_password"
	CodeNotHost        = "not_host"
	CodeAlreadyStarted = "already_started"
)

// CreateRoomRequest is the payload for the create-room operation.
type CreateRoomRequest struct {
	Name            string `json:"name"`
	MaxParticipants int    `json:"max_participants"`
	Private         bool   `json:"private"`
	Password        string `json:"password,omitempty"`
	CreatorID       string `json:"creator_id"`
	DisplayName     string `json:"display_name,omitempty"`
}

// JoinRoomRequest is the payload for the join-room operation.
type JoinRoomRequest struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name,omitempty"`
	Password      string `json:"password,omitempty"`
}

// ErrorResponse is the JSON error body returned by the coordinator.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Coordinator is the request/response collaborator for room operations.
// The persistent channel is a separate concern; see the channel package.
type Coordinator interface {
	// CreateRoom creates a room and returns its snapshot. The creator is the
	// first participant in join order.
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*protocol.Room, error)
	// ListRooms returns room snapshots, optionally including private rooms.
	ListRooms(ctx context.Context, includePrivate bool) ([]protocol.Room, error)
	// JoinRoom adds the participant to the room identified by code.
	JoinRoom(ctx context.Context, code string, req JoinRoomRequest) error
	// RoomDetails returns the current snapshot for the given join code.
	RoomDetails(ctx context.Context, code string) (*protocol.Room, error)
	// LeaveRoom removes the participant from the room.
	LeaveRoom(ctx context.Context, code, participantID string) error
	// StartGame marks the room started. Host only.
	StartGame(ctx context.Context, code, participantID string) error
}

// ErrorForCode maps a wire error code to its sentinel, or nil when the code
// is unknown.
func ErrorForCode(code string) error {
	switch code {
	case CodeRoomNotFound:
		return ErrRoomNotFound
	case CodeRoomFull:
		return ErrRoomFull
	case CodeWrongPassword:
		return ErrWrongPassword
	case CodeNotHost:
		return ErrNotHost
	case CodeAlreadyStarted:
		return ErrAlreadyStarted
	}
	return nil
}
