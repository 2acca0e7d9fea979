package devbackend

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/melee/internal/backend"
	"github.com/cory-johannsen/melee/internal/config"
	"github.com/cory-johannsen/melee/internal/protocol"
)

type wsHarness struct {
	coord backend.Coordinator
	wsURL string
}

func startWSHarness(t *testing.T) *wsHarness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ts := httptest.NewServer(New(logger).Router())
	t.Cleanup(ts.Close)

	return &wsHarness{
		coord: backend.NewHTTPCoordinator(config.BackendConfig{
			BaseURL:        ts.URL,
			RequestTimeout: 5 * time.Second,
		}, logger),
		wsURL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/channel",
	}
}

// dial opens a raw channel connection and consumes the CONNECT ack.
func (h *wsHarness) dial(t *testing.T, participantID, displayName string) *websocket.Conn {
	t.Helper()

	target, err := url.Parse(h.wsURL)
	require.NoError(t, err)
	q := target.Query()
	q.Set("participant_id", participantID)
	q.Set("display_name", displayName)
	target.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, target.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	msg := readMsg(t, conn)
	require.IsType(t, protocol.Connected{}, msg)
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	return msg
}

func sendMsg(t *testing.T, conn *websocket.Conn, msg protocol.Message) {
	t.Helper()
	frame, err := protocol.Encode(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, frame))
}

// awaitType reads until a message of the wanted concrete type arrives.
func awaitType[T protocol.Message](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if typed, ok := readMsg(t, conn).(T); ok {
			return typed
		}
	}
	var zero T
	t.Fatalf("timed out waiting for %T", zero)
	return zero
}

func TestAnnounceRequiresRequestJoin(t *testing.T) {
	h := startWSHarness(t)
	room, err := h.coord.CreateRoom(context.Background(), backend.CreateRoomRequest{
		Name: "arena", MaxParticipants: 4, CreatorID: "alice",
	})
	require.NoError(t, err)

	// bob never joined over HTTP; the channel announce is rejected.
	bob := h.dial(t, "bob", "Bob")
	sendMsg(t, bob, protocol.JoinRoom{RoomID: room.JoinCode, DisplayName: "Bob"})

	errMsg := awaitType[protocol.ErrorMessage](t, bob)
	assert.Contains(t, errMsg.Error, "join the room")
}

func TestAnnounceUnknownRoom(t *testing.T) {
	h := startWSHarness(t)

	alice := h.dial(t, "alice", "Alice")
	sendMsg(t, alice, protocol.JoinRoom{RoomID: "ZZZZZZ", DisplayName: "Alice"})

	errMsg := awaitType[protocol.ErrorMessage](t, alice)
	assert.Contains(t, errMsg.Error, "not found")
}

func TestAnnounceRespondsAndBroadcasts(t *testing.T) {
	h := startWSHarness(t)
	ctx := context.Background()

	room, err := h.coord.CreateRoom(ctx, backend.CreateRoomRequest{
		Name: "arena", MaxParticipants: 4, CreatorID: "alice", DisplayName: "Alice",
	})
	require.NoError(t, err)

	alice := h.dial(t, "alice", "Alice")
	sendMsg(t, alice, protocol.JoinRoom{RoomID: room.JoinCode, DisplayName: "Alice"})
	resp := awaitType[protocol.JoinRoomResponse](t, alice)
	require.True(t, resp.Success)
	assert.Equal(t, room.JoinCode, resp.Room.JoinCode)

	require.NoError(t, h.coord.JoinRoom(ctx, room.JoinCode, backend.JoinRoomRequest{
		ParticipantID: "bob", DisplayName: "Bob",
	}))
	bob := h.dial(t, "bob", "Bob")
	sendMsg(t, bob, protocol.JoinRoom{RoomID: room.JoinCode, DisplayName: "Bob"})

	bobResp := awaitType[protocol.JoinRoomResponse](t, bob)
	require.True(t, bobResp.Success)
	require.Len(t, bobResp.Participants, 2)
	assert.Equal(t, "Alice", bobResp.Participants[0].DisplayName)

	// Alice observes the newcomer with an embedded snapshot.
	update := awaitType[protocol.RoomUpdate](t, alice)
	assert.Equal(t, protocol.RoomActionPlayerJoined, update.Action)
	assert.Equal(t, "bob", update.ParticipantID)
	require.NotNil(t, update.Participant)
	assert.Equal(t, "Bob", update.Participant.DisplayName)
}

func TestDuplicateAnnounceRejected(t *testing.T) {
	h := startWSHarness(t)
	room, err := h.coord.CreateRoom(context.Background(), backend.CreateRoomRequest{
		Name: "arena", MaxParticipants: 4, CreatorID: "alice",
	})
	require.NoError(t, err)

	alice := h.dial(t, "alice", "Alice")
	sendMsg(t, alice, protocol.JoinRoom{RoomID: room.JoinCode, DisplayName: "Alice"})
	awaitType[protocol.JoinRoomResponse](t, alice)

	sendMsg(t, alice, protocol.JoinRoom{RoomID: room.JoinCode, DisplayName: "Alice"})
	errMsg := awaitType[protocol.ErrorMessage](t, alice)
	assert.Contains(t, errMsg.Error, "already in room")
}

func TestActionBroadcastIncludesSender(t *testing.T) {
	h := startWSHarness(t)
	ctx := context.Background()

	room, err := h.coord.CreateRoom(ctx, backend.CreateRoomRequest{
		Name: "arena", MaxParticipants: 4, CreatorID: "alice",
	})
	require.NoError(t, err)
	require.NoError(t, h.coord.JoinRoom(ctx, room.JoinCode, backend.JoinRoomRequest{ParticipantID: "bob"}))

	alice := h.dial(t, "alice", "Alice")
	sendMsg(t, alice, protocol.JoinRoom{RoomID: room.JoinCode, DisplayName: "Alice"})
	awaitType[protocol.JoinRoomResponse](t, alice)

	bob := h.dial(t, "bob", "Bob")
	sendMsg(t, bob, protocol.JoinRoom{RoomID: room.JoinCode, DisplayName: "Bob"})
	awaitType[protocol.JoinRoomResponse](t, bob)

	sendMsg(t, alice, protocol.PlayerAction{ActionType: protocol.ActionGrab, TargetObjectID: "barrel-1"})

	bobAction := awaitType[protocol.PlayerAction](t, bob)
	assert.Equal(t, "alice", bobAction.Actor, "actor is stamped server-side")
	assert.Equal(t, "barrel-1", bobAction.TargetObjectID)

	// The sender receives its own echo; filtering is the client's job.
	aliceAction := awaitType[protocol.PlayerAction](t, alice)
	assert.Equal(t, "alice", aliceAction.Actor)
}

func TestActionWithoutRoom(t *testing.T) {
	h := startWSHarness(t)

	alice := h.dial(t, "alice", "Alice")
	sendMsg(t, alice, protocol.PlayerAction{ActionType: protocol.ActionGrab})

	errMsg := awaitType[protocol.ErrorMessage](t, alice)
	assert.Contains(t, errMsg.Error, "not in a room")
}

func TestHeartbeatEchoed(t *testing.T) {
	h := startWSHarness(t)

	alice := h.dial(t, "alice", "Alice")
	sendMsg(t, alice, protocol.Heartbeat{})
	awaitType[protocol.Heartbeat](t, alice)
}

func TestStartBroadcastsToChannelMembers(t *testing.T) {
	h := startWSHarness(t)
	ctx := context.Background()

	room, err := h.coord.CreateRoom(ctx, backend.CreateRoomRequest{
		Name: "arena", MaxParticipants: 4, CreatorID: "alice",
	})
	require.NoError(t, err)
	require.NoError(t, h.coord.JoinRoom(ctx, room.JoinCode, backend.JoinRoomRequest{ParticipantID: "bob"}))

	alice := h.dial(t, "alice", "Alice")
	sendMsg(t, alice, protocol.JoinRoom{RoomID: room.JoinCode, DisplayName: "Alice"})
	awaitType[protocol.JoinRoomResponse](t, alice)

	bob := h.dial(t, "bob", "Bob")
	sendMsg(t, bob, protocol.JoinRoom{RoomID: room.JoinCode, DisplayName: "Bob"})
	awaitType[protocol.JoinRoomResponse](t, bob)
	awaitType[protocol.RoomUpdate](t, alice) // bob's join notification

	require.NoError(t, h.coord.StartGame(ctx, room.JoinCode, "alice"))

	awaitType[protocol.GameStart](t, alice)
	state := awaitType[protocol.StateUpdate](t, alice)
	require.NotNil(t, state.Room)
	assert.True(t, state.Room.Started)
	assert.Len(t, state.Participants, 2)

	awaitType[protocol.GameStart](t, bob)
}

func TestLeaveBroadcastsPlayerLeft(t *testing.T) {
	h := startWSHarness(t)
	ctx := context.Background()

	room, err := h.coord.CreateRoom(ctx, backend.CreateRoomRequest{
		Name: "arena", MaxParticipants: 4, CreatorID: "alice",
	})
	require.NoError(t, err)
	require.NoError(t, h.coord.JoinRoom(ctx, room.JoinCode, backend.JoinRoomRequest{ParticipantID: "bob", DisplayName: "Bob"}))

	alice := h.dial(t, "alice", "Alice")
	sendMsg(t, alice, protocol.JoinRoom{RoomID: room.JoinCode, DisplayName: "Alice"})
	awaitType[protocol.JoinRoomResponse](t, alice)

	bob := h.dial(t, "bob", "Bob")
	sendMsg(t, bob, protocol.JoinRoom{RoomID: room.JoinCode, DisplayName: "Bob"})
	awaitType[protocol.JoinRoomResponse](t, bob)
	awaitType[protocol.RoomUpdate](t, alice)

	require.NoError(t, h.coord.LeaveRoom(ctx, room.JoinCode, "bob"))

	update := awaitType[protocol.RoomUpdate](t, alice)
	assert.Equal(t, protocol.RoomActionPlayerLeft, update.Action)
	assert.Equal(t, "bob", update.ParticipantID)
}
