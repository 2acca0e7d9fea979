// Package main runs a headless session client against the coordination
// backend: it registers, creates or joins a room, and logs the event stream
// until interrupted. Useful for exercising a backend without a game build.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/melee/internal/backend"
	"github.com/cory-johannsen/melee/internal/config"
	"github.com/cory-johannsen/melee/internal/observability"
	"github.com/cory-johannsen/melee/internal/protocol"
	"github.com/cory-johannsen/melee/internal/server"
	"github.com/cory-johannsen/melee/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (defaults apply when empty)")
	participantID := flag.String("id", "", "stable participant identifier (random when empty)")
	displayName := flag.String("name", "player", "display name shown to other participants")
	createName := flag.String("create", "", "create a room with this name")
	joinCode := flag.String("join", "", "join the room with this code")
	maxParticipants := flag.Int("max", 4, "room capacity when creating")
	private := flag.Bool("private", false, "create a private room")
	password := flag.String("password", "", "room password for private rooms")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		cfg = loaded
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	id := *participantID
	if id == "" {
		id = uuid.NewString()
	}
	identity := protocol.Identity{ID: id, DisplayName: *displayName}

	coord := backend.NewHTTPCoordinator(cfg.Backend, logger)
	core := session.New(session.NewGuard(), cfg.Backend, cfg.Session, identity, coord, logger)

	ctx := context.Background()
	if err := core.Start(ctx); err != nil {
		logger.Fatal("registering with backend", zap.Error(err))
	}

	switch {
	case *createName != "":
		room, err := core.Manager().CreateRoom(ctx, *createName, *maxParticipants, *private, *password, *displayName)
		if err != nil {
			logger.Fatal("creating room", zap.Error(err))
		}
		logger.Info("hosting room", zap.String("join_code", room.JoinCode))
	case *joinCode != "":
		room, err := core.Manager().JoinRoom(ctx, *joinCode, *password, *displayName)
		if err != nil {
			logger.Fatal("joining room", zap.Error(err))
		}
		logger.Info("joined room",
			zap.String("join_code", room.JoinCode),
			zap.String("role", core.State().Role().String()),
		)
	default:
		rooms, err := core.Manager().ListRooms(ctx, false)
		if err != nil {
			logger.Fatal("listing rooms", zap.Error(err))
		}
		for _, room := range rooms {
			logger.Info("room available",
				zap.String("join_code", room.JoinCode),
				zap.String("name", room.Name),
				zap.Int("participants", len(room.CurrentPlayers)),
			)
		}
	}

	quit := make(chan struct{})
	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("events", &server.FuncService{
		StartFn: func() error {
			logEvents(core.Events(), quit, logger)
			return nil
		},
		StopFn: func() {
			close(quit)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			core.Shutdown(shutdownCtx)
		},
	})

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("client error", zap.Error(err))
	}
}

// logEvents mirrors the session event stream to the log until quit closes.
func logEvents(events <-chan session.Event, quit <-chan struct{}, logger *zap.Logger) {
	for {
		select {
		case <-quit:
			return
		case ev := <-events:
			switch e := ev.(type) {
			case session.RoomJoined:
				logger.Info("event: room joined",
					zap.String("join_code", e.Room.JoinCode),
					zap.String("role", e.Role.String()),
				)
			case session.RoomLeft:
				logger.Info("event: room left", zap.String("join_code", e.JoinCode))
			case session.StateUpdated:
				logger.Info("event: state updated",
					zap.Int("participants", len(e.Participants)),
				)
			case session.ActionReceived:
				logger.Info("event: action",
					zap.String("actor", e.Action.Actor),
					zap.String("action_type", string(e.Action.ActionType)),
				)
			case session.GameStarted:
				logger.Info("event: game started", zap.String("join_code", e.JoinCode))
			case session.ErrorEvent:
				logger.Warn("event: error", zap.Error(e.Err))
			case session.Disconnected:
				logger.Warn("event: disconnected", zap.Error(e.Err))
			}
		}
	}
}
