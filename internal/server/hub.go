// Package server coordinates connection registration, envelope fan-out, and
// connection teardown for the sync service via the Hub type.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/countsync/internal/metrics"
	"github.com/Tyrowin/countsync/internal/protocol"
	"github.com/Tyrowin/countsync/internal/state"
)

// ErrHubClosed is returned by Serve after Shutdown has been called.
var ErrHubClosed = errors.New("hub is shut down")

// Hub owns the shared counter store and the connection registry and runs
// the inbound and outbound loops of every accepted connection.
type Hub struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	store    *state.Store
	registry *Registry

	nextID atomic.Uint64

	mu       sync.Mutex // orders registration against Shutdown
	closing  bool
	wg       sync.WaitGroup
	shutdown chan struct{}
}

// NewHub creates a Hub with an empty store and registry.
func NewHub(cfg Config, log *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		cfg:      sanitizeConfig(cfg),
		log:      log,
		metrics:  m,
		store:    state.New(),
		registry: NewRegistry(),
		shutdown: make(chan struct{}),
	}
}

// Store returns the shared counter store.
func (h *Hub) Store() *state.Store { return h.store }

// Registry returns the live connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Serve accepts a new connection on t. The connection is registered, then
// sent the current snapshot and its id, and only then are its inbound and
// outbound loops started. Serve does not block on the connection.
func (h *Hub) Serve(t Transport, addr string) (*Connection, error) {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		_ = t.Close()
		return nil, ErrHubClosed
	}
	id := h.nextID.Add(1) - 1
	c := newConnection(id, addr, t, h.cfg, h.log)
	h.registry.Register(c)
	h.wg.Add(2)
	h.mu.Unlock()

	h.metrics.Accepted.Inc()
	h.metrics.Connections.Inc()
	c.log.Info("client.registered", "total", h.registry.Len())

	if err := h.greet(c); err != nil {
		// The inbound loop fails on its first read and tears down normally.
		c.log.Warn("client.greet", "err", err)
		c.closeTransport()
	}

	go func() {
		defer h.wg.Done()
		c.writePump(h.cfg.PingPeriod(), h.depart)
	}()
	go func() {
		defer h.wg.Done()
		h.readPump(c)
	}()
	return c, nil
}

// greet writes the initial snapshot and identity log directly to the
// transport, ahead of anything queued by other connections meanwhile.
func (h *Hub) greet(c *Connection) error {
	if err := c.send(protocol.UpdateState(h.store.Snapshot())); err != nil {
		return fmt.Errorf("send snapshot: %w", err)
	}
	if err := c.send(protocol.Log(fmt.Sprintf("You are connection id %d", c.id))); err != nil {
		return fmt.Errorf("send identity: %w", err)
	}
	return nil
}

// broadcast enqueues msg on every live connection except the one with id
// excludeID. Full queues drop the message for that recipient only.
func (h *Hub) broadcast(excludeID uint64, msg protocol.ServerMessage) {
	for _, c := range h.registry.Others(excludeID) {
		if !c.enqueue(msg) {
			h.metrics.Dropped.Inc()
			c.log.Debug("queue.drop", "type", msg.Type)
		}
	}
}

// reply enqueues msg on c's own queue, behind whatever broadcasts are
// already waiting there. A full queue drops it like any other envelope; the
// delivery loop stays the only writer once the greeting is done.
func (h *Hub) reply(c *Connection, msg protocol.ServerMessage) {
	if !c.enqueue(msg) {
		h.metrics.Dropped.Inc()
		c.log.Debug("queue.drop", "type", msg.Type)
	}
}

// depart runs once per connection, after its queue has been closed by
// registry removal and fully drained. c is no longer in the registry, so
// every remaining connection is notified.
func (h *Hub) depart(c *Connection) {
	var text string
	if name, ok := c.ClaimedName(); ok {
		text = fmt.Sprintf("%s has logged off", name)
	} else {
		text = fmt.Sprintf("Connection id %d has logged off", c.id)
	}
	h.broadcast(c.id, protocol.Log(text))
	h.metrics.Connections.Dec()
	c.log.Info("client.unregistered", "total", h.registry.Len())
}

// Shutdown stops accepting connections, closes every live transport, and
// waits for all connection loops to finish or for timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("hub.shutdown.start")

	h.mu.Lock()
	if !h.closing {
		h.closing = true
		close(h.shutdown)
	}
	h.mu.Unlock()

	conns := h.registry.All()
	for _, c := range conns {
		c.closeTransport()
	}
	h.log.Info("hub.shutdown.closed", "connections", len(conns))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub.shutdown.complete")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub.shutdown.timeout", "timeout", timeout)
		return context.DeadlineExceeded
	}
}

// Done is closed once Shutdown has been called.
func (h *Hub) Done() <-chan struct{} { return h.shutdown }
