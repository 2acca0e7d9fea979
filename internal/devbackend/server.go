package devbackend

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cory-johannsen/melee/internal/backend"
	"github.com/cory-johannsen/melee/internal/protocol"
)

// Server is the in-process coordination backend: room operations over HTTP
// JSON plus the persistent channel at /channel.
type Server struct {
	registry *registry
	hub      *hub
	logger   *zap.Logger
}

// New creates a backend server with an empty room registry.
//
// Precondition: logger must be non-nil.
func New(logger *zap.Logger) *Server {
	return &Server{
		registry: newRegistry(),
		hub:      newHub(logger),
		logger:   logger,
	}
}

// Router returns the HTTP handler for all backend routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/rooms", s.handleCreateRoom)
	r.Get("/rooms", s.handleListRooms)
	r.Get("/rooms/{code}", s.handleRoomDetails)
	r.Post("/rooms/{code}/join", s.handleJoinRoom)
	r.Post("/rooms/{code}/leave", s.handleLeaveRoom)
	r.Post("/rooms/{code}/start", s.handleStartGame)
	r.Get("/channel", s.handleChannel)
	return r
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req backend.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}
	if req.Name == "" || req.CreatorID == "" || req.MaxParticipants < 1 {
		s.writeError(w, http.StatusBadRequest, "", "name, creator_id and max_participants are required")
		return
	}

	room, err := s.registry.create(req)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	s.logger.Info("room created",
		zap.String("join_code", room.JoinCode),
		zap.String("host_id", room.HostID),
	)
	s.writeJSON(w, http.StatusCreated, room)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	includePrivate := r.URL.Query().Get("include_private") == "true"
	s.writeJSON(w, http.StatusOK, struct {
		Rooms []protocol.Room `json:"rooms"`
	}{Rooms: s.registry.list(includePrivate)})
}

func (s *Server) handleRoomDetails(w http.ResponseWriter, r *http.Request) {
	room, err := s.registry.get(chi.URLParam(r, "code"))
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req backend.JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}
	if req.ParticipantID == "" {
		s.writeError(w, http.StatusBadRequest, "", "participant_id is required")
		return
	}

	code := chi.URLParam(r, "code")
	room, err := s.registry.join(code, req)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	s.logger.Info("participant joined room",
		zap.String("join_code", code),
		zap.String("participant_id", req.ParticipantID),
	)
	s.writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParticipantID string `json:"participant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	code := chi.URLParam(r, "code")
	room, err := s.registry.leave(code, req.ParticipantID)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}

	s.hub.drop(req.ParticipantID)
	s.hub.broadcast(code, protocol.RoomUpdate{
		Action:        protocol.RoomActionPlayerLeft,
		ParticipantID: req.ParticipantID,
		DisplayName:   s.registry.nameOf(req.ParticipantID),
	}, "")

	s.logger.Info("participant left room",
		zap.String("join_code", code),
		zap.String("participant_id", req.ParticipantID),
	)
	s.writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParticipantID string `json:"participant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	code := chi.URLParam(r, "code")
	room, err := s.registry.start(code, req.ParticipantID)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}

	s.hub.broadcast(code, protocol.GameStart{}, "")
	s.hub.broadcast(code, protocol.StateUpdate{
		Room:         room,
		Participants: s.participantSnapshots(room),
		Objects:      []protocol.ObjectSnapshot{},
	}, "")

	s.logger.Info("game started", zap.String("join_code", code))
	s.writeJSON(w, http.StatusOK, room)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	s.writeJSON(w, status, backend.ErrorResponse{Error: msg, Code: code})
}

// writeBackendError maps registry sentinels to HTTP statuses and wire codes.
func (s *Server) writeBackendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backend.ErrRoomNotFound):
		s.writeError(w, http.StatusNotFound, backend.CodeRoomNotFound, err.Error())
	case errors.Is(err, backend.ErrRoomFull):
		s.writeError(w, http.StatusConflict, backend.CodeRoomFull, err.Error())
	case errors.Is(err, backend.ErrWrongPassword):
		s.writeError(w, http.StatusForbidden, backend.CodeWrongPassword, err.Error())
	case errors.Is(err, backend.ErrNotHost):
		s.writeError(w, http.StatusForbidden, backend.CodeNotHost, err.Error())
	case errors.Is(err, backend.ErrAlreadyStarted):
		s.writeError(w, http.StatusConflict, backend.CodeAlreadyStarted, err.Error())
	default:
		s.logger.Error("room operation failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "", "internal error")
	}
}
