// Package devbackend provides an in-process coordination backend
// implementing the room operations and the persistent channel protocol. It
// backs local development and the integration tests; the production backend
// is an external service speaking the same protocol.
package devbackend

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/melee/internal/backend"
	"github.com/cory-johannsen/melee/internal/protocol"
)

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const codeLength = 6

// roomEntry pairs a room snapshot with its private-room password hash.
type roomEntry struct {
	room         protocol.Room
	passwordHash []byte
}

// registry tracks rooms and participant display names. All methods are safe
// for concurrent use.
type registry struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry // join code → entry
	names map[string]string     // participant id → display name
}

func newRegistry() *registry {
	return &registry{
		rooms: make(map[string]*roomEntry),
		names: make(map[string]string),
	}
}

// create makes a room with a fresh id and join code. The creator is the
// first participant in join order and the host.
func (r *registry) create(req backend.CreateRoomRequest) (*protocol.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.generateCodeLocked()
	if err != nil {
		return nil, err
	}

	entry := &roomEntry{
		room: protocol.Room{
			ID:              uuid.NewString(),
			JoinCode:        code,
			Name:            req.Name,
			HostID:          req.CreatorID,
			MaxParticipants: req.MaxParticipants,
			CurrentPlayers:  []string{req.CreatorID},
			Private:         req.Private,
		},
	}
	if req.Private && req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing room password: %w", err)
		}
		entry.passwordHash = hash
	}

	r.rooms[code] = entry
	if req.DisplayName != "" {
		r.names[req.CreatorID] = req.DisplayName
	}
	return entry.room.Clone(), nil
}

// list returns room snapshots, excluding private rooms unless requested.
func (r *registry) list(includePrivate bool) []protocol.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.Room, 0, len(r.rooms))
	for _, entry := range r.rooms {
		if entry.room.Private && !includePrivate {
			continue
		}
		out = append(out, *entry.room.Clone())
	}
	return out
}

// get returns the room snapshot for the given join code.
func (r *registry) get(code string) (*protocol.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.rooms[code]
	if !ok {
		return nil, backend.ErrRoomNotFound
	}
	return entry.room.Clone(), nil
}

// join adds the participant to the room. Joining a full room is rejected;
// joining a room the participant is already in is a no-op.
func (r *registry) join(code string, req backend.JoinRoomRequest) (*protocol.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.rooms[code]
	if !ok {
		return nil, backend.ErrRoomNotFound
	}
	if len(entry.passwordHash) > 0 {
		if bcrypt.CompareHashAndPassword(entry.passwordHash, []byte(req.Password)) != nil {
			return nil, backend.ErrWrongPassword
		}
	}
	if entry.room.HasParticipant(req.ParticipantID) {
		return entry.room.Clone(), nil
	}
	if entry.room.IsFull() {
		return nil, backend.ErrRoomFull
	}

	entry.room.CurrentPlayers = append(entry.room.CurrentPlayers, req.ParticipantID)
	if req.DisplayName != "" {
		r.names[req.ParticipantID] = req.DisplayName
	}
	return entry.room.Clone(), nil
}

// leave removes the participant. An emptied room is deleted; a departed host
// is replaced by the next participant in join order.
func (r *registry) leave(code, participantID string) (*protocol.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.rooms[code]
	if !ok {
		return nil, backend.ErrRoomNotFound
	}

	players := entry.room.CurrentPlayers[:0]
	for _, id := range entry.room.CurrentPlayers {
		if id != participantID {
			players = append(players, id)
		}
	}
	entry.room.CurrentPlayers = players

	if len(players) == 0 {
		delete(r.rooms, code)
		return entry.room.Clone(), nil
	}
	if entry.room.HostID == participantID {
		entry.room.HostID = players[0]
	}
	return entry.room.Clone(), nil
}

// start marks the room started. Host only.
func (r *registry) start(code, participantID string) (*protocol.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.rooms[code]
	if !ok {
		return nil, backend.ErrRoomNotFound
	}
	if entry.room.HostID != participantID {
		return nil, backend.ErrNotHost
	}
	if entry.room.Started {
		return nil, backend.ErrAlreadyStarted
	}
	entry.room.Started = true
	return entry.room.Clone(), nil
}

// nameOf returns the recorded display name, falling back to the id.
func (r *registry) nameOf(participantID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.names[participantID]; ok {
		return name
	}
	return participantID
}

// setName records a display name learned from a channel announcement.
func (r *registry) setName(participantID, name string) {
	if name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[participantID] = name
}

// generateCodeLocked produces a join code unique among live rooms.
func (r *registry) generateCodeLocked() (string, error) {
	for {
		code := make([]byte, codeLength)
		for i := range code {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
			if err != nil {
				return "", fmt.Errorf("generating join code: %w", err)
			}
			code[i] = codeCharset[n.Int64()]
		}
		if _, taken := r.rooms[string(code)]; !taken {
			return string(code), nil
		}
	}
}
