package server

import (
	"fmt"
	"time"

	"github.com/Tyrowin/countsync/internal/protocol"
)

// readPump processes inbound envelopes in arrival order until the transport
// fails or closes, then removes the connection from the registry. Removal
// closes the outbound queue, which hands departure over to the write pump.
func (h *Hub) readPump(c *Connection) {
	defer func() {
		h.registry.Remove(c.id)
		c.closeTransport()
	}()

	for {
		raw, err := c.transport.ReadMessage()
		if err != nil {
			c.log.Info("client.read_closed", "kind", readErrorKind(err), "err", err)
			return
		}

		if delay := c.limiter.reserve(); delay > 0 {
			h.metrics.RateLimited.Inc()
			c.log.Debug("client.throttled", "delay", delay)
			if !h.pause(delay) {
				return
			}
		}

		h.dispatch(c, raw)
	}
}

// pause holds an over-rate inbound loop for d. Nothing further is read from
// the transport meanwhile, so the client is slowed rather than losing
// envelopes. It reports false if the hub shuts down first.
func (h *Hub) pause(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-h.shutdown:
		return false
	}
}

// dispatch applies one raw inbound payload. A connection is Anonymous until
// its first SetName and Named afterwards; AddCount and SendMessage are
// ignored while Anonymous.
func (h *Hub) dispatch(c *Connection, raw []byte) {
	msg, err := protocol.DecodeClientMessage(raw)
	if err != nil {
		h.metrics.DecodeFailures.Inc()
		c.log.Warn("client.decode", "err", err)
		h.reply(c, protocol.Log(fmt.Sprintf("Failed to parse your message %v: %q", err, raw)))
		return
	}
	h.metrics.Inbound.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case protocol.TypeSetName:
		h.claimName(c, msg.Name)
	case protocol.TypeAddCount:
		h.addCount(c, msg.Delta)
	case protocol.TypeSendMessage:
		h.sendChat(c, msg.Text)
	}
}

// claimName announces every claim, including repeats and renames to the
// same name.
func (h *Hub) claimName(c *Connection, name string) {
	if !h.registry.SetName(c.id, name) {
		return
	}
	c.log.Debug("client.named", "name", name)
	h.broadcast(c.id, protocol.Log(fmt.Sprintf("%s logged in", name)))
}

// addCount broadcasts the snapshot produced by this very increment, never a
// re-read, so recipients cannot observe state older than the mutation.
func (h *Hub) addCount(c *Connection, delta uint64) {
	name, ok := c.ClaimedName()
	if !ok {
		return
	}
	snap := h.store.Add(name, delta)
	h.broadcast(c.id, protocol.UpdateState(snap))
}

func (h *Hub) sendChat(c *Connection, text string) {
	name, ok := c.ClaimedName()
	if !ok {
		return
	}
	h.broadcast(c.id, protocol.Chat(text, name))
}
