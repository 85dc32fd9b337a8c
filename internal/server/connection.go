// Package server manages individual connections: the bounded outbound queue,
// the delivery loop that drains it onto the transport, and the claimed name.
package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/countsync/internal/protocol"
)

// Connection is one live client. Its identity never changes; its claimed
// name is set by the inbound loop and read by the departure path.
type Connection struct {
	id        uint64
	session   uuid.UUID
	addr      string
	transport Transport
	limiter   *rateLimiter
	log       *slog.Logger

	mu     sync.Mutex
	name   string
	named  bool
	queue  chan protocol.ServerMessage
	closed bool
}

func newConnection(id uint64, addr string, t Transport, cfg Config, log *slog.Logger) *Connection {
	session := uuid.New()
	return &Connection{
		id:        id,
		session:   session,
		addr:      addr,
		transport: t,
		limiter:   newRateLimiter(cfg.RateLimit),
		log:       log.With("conn_id", id, "session", session.String(), "addr", addr),
		queue:     make(chan protocol.ServerMessage, cfg.QueueSize),
	}
}

// ID returns the connection's accept-order identity.
func (c *Connection) ID() uint64 { return c.id }

// ClaimedName returns the name claimed by the client, if any.
func (c *Connection) ClaimedName() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name, c.named
}

func (c *Connection) setName(name string) {
	c.mu.Lock()
	c.name = name
	c.named = true
	c.mu.Unlock()
}

// enqueue offers msg to the outbound queue without blocking. It reports false
// when the queue is full or already closed; the message is then dropped for
// this connection only.
func (c *Connection) enqueue(msg protocol.ServerMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.queue <- msg:
		return true
	default:
		return false
	}
}

// closeQueue closes the producer side of the queue. Safe to call twice.
func (c *Connection) closeQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.queue)
	}
}

// send encodes msg and writes it straight to the transport. Only the accept
// path (before the delivery loop starts) and the delivery loop call it.
func (c *Connection) send(msg protocol.ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.transport.WriteMessage(data)
}

func (c *Connection) closeTransport() {
	if err := c.transport.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("transport.close", "err", err)
	}
}

// writePump delivers queued envelopes in order. After a write or ping
// failure the transport is closed and the queue is still drained, so that
// departure runs once the inbound loop has removed the connection and the
// queue closes. onClosed runs exactly once, after the queue is drained.
func (c *Connection) writePump(pingPeriod time.Duration, onClosed func(*Connection)) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case msg, ok := <-c.queue:
			if !ok {
				onClosed(c)
				c.closeTransport()
				return
			}
			if !healthy {
				continue
			}
			if err := c.send(msg); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warn("transport.write", "err", err, "type", msg.Type)
				}
				healthy = false
				c.closeTransport()
			}

		case <-ticker.C:
			if !healthy {
				continue
			}
			if err := c.transport.Ping(); err != nil {
				c.log.Debug("transport.ping", "err", err)
				healthy = false
				c.closeTransport()
			}
		}
	}
}
