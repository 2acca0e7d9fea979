package devbackend

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/melee/internal/protocol"
)

// handleChannel upgrades the persistent channel connection and runs its read
// loop. Connecting with a participant identifier registers it.
func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	participantID := r.URL.Query().Get("participant_id")
	if participantID == "" {
		http.Error(w, "participant_id is required", http.StatusBadRequest)
		return
	}
	if name := r.URL.Query().Get("display_name"); name != "" {
		s.registry.setName(participantID, name)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // local development backend
	})
	if err != nil {
		s.logger.Warn("channel accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "channel closed")

	client := s.hub.register(participantID)
	defer s.hub.unregister(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.writeLoop(ctx, conn, client)

	s.hub.sendTo(participantID, protocol.Connected{})
	s.logger.Info("channel registered", zap.String("participant_id", participantID))

	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			s.logger.Debug("channel read ended",
				zap.String("participant_id", participantID),
				zap.Error(err),
			)
			return
		}
		s.dispatch(participantID, frame)
	}
}

// writeLoop drains the client outbox onto the socket until the outbox closes
// or the connection dies.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, client *hubClient) {
	for frame := range client.outbox {
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			s.logger.Debug("channel write failed",
				zap.String("participant_id", client.id),
				zap.Error(err),
			)
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// dispatch routes one inbound channel frame.
func (s *Server) dispatch(participantID string, frame []byte) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		s.logger.Warn("undecodable channel frame",
			zap.String("participant_id", participantID),
			zap.Error(err),
		)
		s.hub.sendTo(participantID, protocol.ErrorMessage{Error: "malformed message"})
		return
	}

	switch m := msg.(type) {
	case protocol.JoinRoom:
		s.handleAnnounce(participantID, m)
	case protocol.PlayerAction:
		s.handleAction(participantID, m)
	case protocol.Heartbeat:
		s.hub.sendTo(participantID, protocol.Heartbeat{})
	default:
		s.logger.Debug("ignoring channel message",
			zap.String("participant_id", participantID),
			zap.String("type", protocol.TypeOf(msg)),
		)
	}
}

// handleAnnounce processes a channel-level join announcement. The participant
// must already hold room membership from the join request; announcing twice
// for the same room is rejected with the "already in room" error that the
// request/announce race produces.
func (s *Server) handleAnnounce(participantID string, m protocol.JoinRoom) {
	s.registry.setName(participantID, m.DisplayName)

	room, err := s.registry.get(m.RoomID)
	if err != nil {
		s.hub.sendTo(participantID, protocol.ErrorMessage{Error: "room not found"})
		return
	}
	if !room.HasParticipant(participantID) {
		s.hub.sendTo(participantID, protocol.ErrorMessage{Error: "join the room before announcing"})
		return
	}
	if !s.hub.announce(participantID, room.JoinCode) {
		s.hub.sendTo(participantID, protocol.ErrorMessage{Error: "already in room"})
		return
	}

	s.hub.sendTo(participantID, protocol.JoinRoomResponse{
		Success:      true,
		Room:         room,
		Participants: s.participantSnapshots(room),
	})

	name := s.registry.nameOf(participantID)
	s.hub.broadcast(room.JoinCode, protocol.RoomUpdate{
		Action:        protocol.RoomActionPlayerJoined,
		ParticipantID: participantID,
		DisplayName:   name,
		Participant: &protocol.ParticipantSnapshot{
			ID:          participantID,
			DisplayName: name,
		},
	}, participantID)

	s.logger.Info("participant announced",
		zap.String("participant_id", participantID),
		zap.String("join_code", room.JoinCode),
	)
}

// handleAction fans a player action out to every channel member of the
// actor's room, the sender included. Senders filter their own echo.
func (s *Server) handleAction(participantID string, m protocol.PlayerAction) {
	code, ok := s.hub.roomOf(participantID)
	if !ok {
		s.hub.sendTo(participantID, protocol.ErrorMessage{Error: "not in a room"})
		return
	}
	m.Actor = participantID
	s.hub.broadcast(code, m, "")
}

// participantSnapshots builds snapshots for the room in join order.
func (s *Server) participantSnapshots(room *protocol.Room) []protocol.ParticipantSnapshot {
	out := make([]protocol.ParticipantSnapshot, 0, len(room.CurrentPlayers))
	for _, id := range room.CurrentPlayers {
		out = append(out, protocol.ParticipantSnapshot{
			ID:          id,
			DisplayName: s.registry.nameOf(id),
		})
	}
	return out
}
