package session

import (
	"context"
	"sync"

	"github.com/cory-johannsen/melee/internal/backend"
	"github.com/cory-johannsen/melee/internal/protocol"
)

// stubCoordinator is an in-memory Coordinator serving a single scripted room.
type stubCoordinator struct {
	mu           sync.Mutex
	room         *protocol.Room
	detailsErr   error
	detailsCalls int
}

func (s *stubCoordinator) setRoom(room *protocol.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room.Clone()
}

func (s *stubCoordinator) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detailsCalls
}

func (s *stubCoordinator) CreateRoom(_ context.Context, req backend.CreateRoomRequest) (*protocol.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = &protocol.Room{
		ID:              "room-id",
		JoinCode:        "ABC123",
		Name:            req.Name,
		HostID:          req.CreatorID,
		MaxParticipants: req.MaxParticipants,
		CurrentPlayers:  []string{req.CreatorID},
		Private:         req.Private,
	}
	return s.room.Clone(), nil
}

func (s *stubCoordinator) ListRooms(context.Context, bool) ([]protocol.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return nil, nil
	}
	return []protocol.Room{*s.room.Clone()}, nil
}

func (s *stubCoordinator) JoinRoom(_ context.Context, code string, req backend.JoinRoomRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil || s.room.JoinCode != code {
		return backend.ErrRoomNotFound
	}
	if !s.room.HasParticipant(req.ParticipantID) {
		if s.room.IsFull() {
			return backend.ErrRoomFull
		}
		s.room.CurrentPlayers = append(s.room.CurrentPlayers, req.ParticipantID)
	}
	return nil
}

func (s *stubCoordinator) RoomDetails(_ context.Context, code string) (*protocol.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailsCalls++
	if s.detailsErr != nil {
		return nil, s.detailsErr
	}
	if s.room == nil || s.room.JoinCode != code {
		return nil, backend.ErrRoomNotFound
	}
	return s.room.Clone(), nil
}

func (s *stubCoordinator) LeaveRoom(_ context.Context, code, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil || s.room.JoinCode != code {
		return backend.ErrRoomNotFound
	}
	players := s.room.CurrentPlayers[:0]
	for _, id := range s.room.CurrentPlayers {
		if id != participantID {
			players = append(players, id)
		}
	}
	s.room.CurrentPlayers = players
	return nil
}

func (s *stubCoordinator) StartGame(_ context.Context, code, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil || s.room.JoinCode != code {
		return backend.ErrRoomNotFound
	}
	if s.room.HostID != participantID {
		return backend.ErrNotHost
	}
	if s.room.Started {
		return backend.ErrAlreadyStarted
	}
	s.room.Started = true
	return nil
}

// drainEvents returns all events currently buffered on the bus.
func drainEvents(b *bus) []Event {
	var out []Event
	for {
		select {
		case ev := <-b.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}
