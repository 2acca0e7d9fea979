package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/melee/internal/config"
	"github.com/cory-johannsen/melee/internal/protocol"
)

// HTTPCoordinator talks to the coordination backend over HTTP JSON.
type HTTPCoordinator struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPCoordinator creates a coordinator client from backend configuration.
//
// Precondition: cfg.BaseURL must be a valid URL; logger must be non-nil.
func NewHTTPCoordinator(cfg config.BackendConfig, logger *zap.Logger) *HTTPCoordinator {
	return &HTTPCoordinator{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logger,
	}
}

// CreateRoom creates a room and returns its snapshot.
func (c *HTTPCoordinator) CreateRoom(ctx context.Context, req CreateRoomRequest) (*protocol.Room, error) {
	var room protocol.Room
	if err := c.do(ctx, http.MethodPost, "/rooms", req, &room); err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}
	return &room, nil
}

// ListRooms returns room snapshots, optionally including private rooms.
func (c *HTTPCoordinator) ListRooms(ctx context.Context, includePrivate bool) ([]protocol.Room, error) {
	path := "/rooms"
	if includePrivate {
		path += "?" + url.Values{"include_private": {"true"}}.Encode()
	}
	var out struct {
		Rooms []protocol.Room `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	return out.Rooms, nil
}

// JoinRoom adds the participant to the room identified by code.
func (c *HTTPCoordinator) JoinRoom(ctx context.Context, code string, req JoinRoomRequest) error {
	if err := c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(code)+"/join", req, nil); err != nil {
		return fmt.Errorf("joining room %s: %w", code, err)
	}
	return nil
}

// RoomDetails returns the current snapshot for the given join code.
func (c *HTTPCoordinator) RoomDetails(ctx context.Context, code string) (*protocol.Room, error) {
	var room protocol.Room
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(code), nil, &room); err != nil {
		return nil, fmt.Errorf("fetching room %s: %w", code, err)
	}
	return &room, nil
}

// LeaveRoom removes the participant from the room.
func (c *HTTPCoordinator) LeaveRoom(ctx context.Context, code, participantID string) error {
	body := struct {
		ParticipantID string `json:"participant_id"`
	}{ParticipantID: participantID}
	if err := c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(code)+"/leave", body, nil); err != nil {
		return fmt.Errorf("leaving room %s: %w", code, err)
	}
	return nil
}

// StartGame marks the room started. Host only.
func (c *HTTPCoordinator) StartGame(ctx context.Context, code, participantID string) error {
	body := struct {
		ParticipantID string `json:"participant_id"`
	}{ParticipantID: participantID}
	if err := c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(code)+"/start", body, nil); err != nil {
		return fmt.Errorf("starting room %s: %w", code, err)
	}
	return nil
}

// do executes one JSON round trip. A nil in skips the request body; a nil out
// discards the response body.
func (c *HTTPCoordinator) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// decodeError maps a JSON error body to a sentinel where the code is known,
// falling back to the raw message.
func (c *HTTPCoordinator) decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	if sentinel := ErrorForCode(errResp.Code); sentinel != nil {
		return sentinel
	}
	c.logger.Debug("uncoded backend error",
		zap.Int("status", resp.StatusCode),
		zap.String("message", errResp.Error),
	)
	return fmt.Errorf("backend error (status %d): %s", resp.StatusCode, errResp.Error)
}
