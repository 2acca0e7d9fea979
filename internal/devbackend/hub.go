package devbackend

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/melee/internal/protocol"
)

const clientOutboxSize = 64

// hubClient is one connected channel participant.
type hubClient struct {
	id     string
	outbox chan []byte
}

// hub tracks connected channel clients and per-room channel membership, and
// fans broadcast frames out to room members.
type hub struct {
	mu       sync.Mutex
	clients  map[string]*hubClient // participant id → client
	memberOf map[string]string     // participant id → announced join code
	members  map[string]map[string]bool
	logger   *zap.Logger
}

func newHub(logger *zap.Logger) *hub {
	return &hub{
		clients:  make(map[string]*hubClient),
		memberOf: make(map[string]string),
		members:  make(map[string]map[string]bool),
		logger:   logger,
	}
}

// register adds a client, replacing any previous connection for the id.
func (h *hub) register(id string) *hubClient {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[id]; ok {
		close(old.outbox)
	}
	c := &hubClient{id: id, outbox: make(chan []byte, clientOutboxSize)}
	h.clients[id] = c
	return c
}

// unregister removes the client and its room membership.
func (h *hub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.id] != c {
		return // replaced by a newer connection
	}
	delete(h.clients, c.id)
	if code, ok := h.memberOf[c.id]; ok {
		delete(h.memberOf, c.id)
		if set := h.members[code]; set != nil {
			delete(set, c.id)
			if len(set) == 0 {
				delete(h.members, code)
			}
		}
	}
	close(c.outbox)
}

// announce records channel membership in the given room. Returns false when
// the participant already announced for that room (the duplicate-join race).
func (h *hub) announce(id, code string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.memberOf[id] == code {
		return false
	}
	if prev, ok := h.memberOf[id]; ok {
		if set := h.members[prev]; set != nil {
			delete(set, id)
		}
	}
	h.memberOf[id] = code
	if h.members[code] == nil {
		h.members[code] = make(map[string]bool)
	}
	h.members[code][id] = true
	return true
}

// roomOf returns the join code the participant announced for, if any.
func (h *hub) roomOf(id string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	code, ok := h.memberOf[id]
	return code, ok
}

// drop clears the participant's channel membership without disconnecting.
func (h *hub) drop(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if code, ok := h.memberOf[id]; ok {
		delete(h.memberOf, id)
		if set := h.members[code]; set != nil {
			delete(set, id)
		}
	}
}

// sendTo queues a message for one participant. Slow clients drop frames.
func (h *hub) sendTo(id string, msg protocol.Message) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		h.logger.Error("encoding frame", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		h.enqueueLocked(c, frame)
	}
}

// broadcast queues a message for every channel member of the room. When skip
// is non-empty that participant is excluded.
func (h *hub) broadcast(code string, msg protocol.Message, skip string) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		h.logger.Error("encoding frame", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.members[code] {
		if id == skip {
			continue
		}
		if c, ok := h.clients[id]; ok {
			h.enqueueLocked(c, frame)
		}
	}
}

// enqueueLocked queues one frame without blocking. Callers hold h.mu, which
// also guards outbox closure in register/unregister: a client reachable from
// the maps always has an open outbox, so the send cannot hit a closed
// channel when a participant reconnects or drops mid-broadcast.
func (h *hub) enqueueLocked(c *hubClient, frame []byte) {
	select {
	case c.outbox <- frame:
	default:
		h.logger.Warn("client outbox full, dropping frame", zap.String("participant_id", c.id))
	}
}
