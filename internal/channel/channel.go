// Package channel owns the single persistent bidirectional connection to the
// coordination backend. It exposes connect/send/disconnect plus callback
// events for connected/message/error/disconnected, runs the asynchronous
// receive loop, and keeps the connection alive with heartbeat echoes.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/melee/internal/protocol"
)

// ErrNotConnected is returned by Send when no connection is open.
var ErrNotConnected = errors.New("channel not connected")

// ErrSendBufferFull is returned by Send when the outbox is saturated.
var ErrSendBufferFull = errors.New("channel send buffer full")

const outboxSize = 64

// Callbacks receive channel events. All callbacks are invoked from the
// channel's own goroutines; OnMessage is always called from the single
// receive loop, so one consumer sees messages serially.
type Callbacks struct {
	// OnConnected fires when the backend acknowledges registration (CONNECT).
	OnConnected func()
	// OnMessage delivers each decoded inbound message.
	OnMessage func(protocol.Message)
	// OnError surfaces non-fatal failures: send errors and decode failures.
	OnError func(error)
	// OnDisconnected fires once when the connection drops or is closed.
	OnDisconnected func(err error)
}

// Channel is the persistent connection. Exactly one open Channel is owned
// per process; see session.Registrar for ownership rules.
type Channel struct {
	wsURL     string
	identity  protocol.Identity
	heartbeat time.Duration
	callbacks Callbacks
	logger    *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	cancel    context.CancelFunc
	outbox    chan []byte
	wg        sync.WaitGroup
	connected atomic.Bool

	// disconnectOnce guards the single OnDisconnected delivery per connection.
	disconnectOnce *sync.Once
}

// New creates an unconnected Channel.
//
// Precondition: wsURL must be a valid websocket URL; identity.ID must be
// non-empty; logger must be non-nil.
func New(wsURL string, identity protocol.Identity, heartbeat time.Duration, cb Callbacks, logger *zap.Logger) *Channel {
	return &Channel{
		wsURL:     wsURL,
		identity:  identity,
		heartbeat: heartbeat,
		callbacks: cb,
		logger:    logger,
	}
}

// Connect dials the backend, addressed by the participant identity, and
// starts the receive, write, and heartbeat loops. Connecting with a stable
// identity is the implicit registration; the backend acks with CONNECT.
//
// Precondition: the channel must not already be connected.
// Postcondition: On success the receive loop is running and Send may be used.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("channel already connected for %s", c.identity.ID)
	}

	target, err := url.Parse(c.wsURL)
	if err != nil {
		return fmt.Errorf("parsing websocket url: %w", err)
	}
	q := target.Query()
	q.Set("participant_id", c.identity.ID)
	if c.identity.DisplayName != "" {
		q.Set("display_name", c.identity.DisplayName)
	}
	target.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, target.String(), nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.wsURL, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.outbox = make(chan []byte, outboxSize)
	c.connected.Store(true)
	c.disconnectOnce = &sync.Once{}

	c.wg.Add(2)
	go c.receiveLoop(loopCtx, conn)
	go c.writeLoop(loopCtx, conn, c.outbox)

	if c.heartbeat > 0 {
		c.wg.Add(1)
		go c.heartbeatLoop(loopCtx)
	}

	c.logger.Info("channel connected",
		zap.String("participant_id", c.identity.ID),
		zap.String("url", c.wsURL),
	)
	return nil
}

// IsConnected reports whether the connection is currently open.
func (c *Channel) IsConnected() bool {
	return c.connected.Load()
}

// Send encodes and enqueues one outbound message. Sends are fire-and-forget;
// write failures surface through OnError, not through this return value. The
// returned error only reports enqueue problems (disconnected or full buffer).
func (c *Channel) Send(msg protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	outbox := c.outbox
	open := c.connected.Load()
	c.mu.Unlock()

	if !open || outbox == nil {
		return ErrNotConnected
	}
	select {
	case outbox <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close shuts the connection down cleanly and waits for the loops to exit.
// Safe to call when not connected.
func (c *Channel) Close() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.outbox = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	c.connected.Store(false)
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	c.wg.Wait()
	c.fireDisconnected(nil)
}

// receiveLoop reads and decodes frames until the connection drops. Decode
// failures are per-message: they surface through OnError and the loop
// continues. Heartbeat acks are absorbed here and not forwarded.
func (c *Channel) receiveLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.connected.Store(false)
			if ctx.Err() == nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					c.fireDisconnected(nil)
				default:
					c.logger.Warn("channel read failed", zap.Error(err))
					c.fireDisconnected(err)
				}
			}
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			// Malformed or unknown frames are dropped; the loop survives.
			c.logger.Warn("dropping undecodable frame", zap.Error(err))
			if c.callbacks.OnError != nil {
				c.callbacks.OnError(err)
			}
			continue
		}

		switch msg.(type) {
		case protocol.Connected:
			c.logger.Debug("registration acknowledged",
				zap.String("participant_id", c.identity.ID),
			)
			if c.callbacks.OnConnected != nil {
				c.callbacks.OnConnected()
			}
		case protocol.Heartbeat:
			// Ack of our own keep-alive; nothing to forward.
		default:
			if c.callbacks.OnMessage != nil {
				c.callbacks.OnMessage(msg)
			}
		}
	}
}

// writeLoop drains the outbox. A write failure is surfaced through OnError
// and ends the loop; the receive loop observes the broken connection.
func (c *Channel) writeLoop(ctx context.Context, conn *websocket.Conn, outbox <-chan []byte) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-outbox:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("channel write failed", zap.Error(err))
					if c.callbacks.OnError != nil {
						c.callbacks.OnError(fmt.Errorf("writing frame: %w", err))
					}
				}
				return
			}
		}
	}
}

func (c *Channel) heartbeatLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Send(protocol.Heartbeat{}); err != nil {
				return
			}
		}
	}
}

func (c *Channel) fireDisconnected(err error) {
	c.mu.Lock()
	once := c.disconnectOnce
	c.mu.Unlock()
	if once == nil {
		return
	}
	once.Do(func() {
		if c.callbacks.OnDisconnected != nil {
			c.callbacks.OnDisconnected(err)
		}
	})
}
