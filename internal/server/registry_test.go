package server

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/countsync/internal/logging"
	"github.com/Tyrowin/countsync/internal/protocol"
)

func newTestConnection(id uint64) *Connection {
	return newConnection(id, "pipe", newFakeTransport(), testConfig(), logging.Discard())
}

func ids(conns []*Connection) []uint64 {
	out := make([]uint64, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID())
	}
	return out
}

func TestRegistryRegisterAndOthers(t *testing.T) {
	r := NewRegistry()
	for _, id := range []uint64{3, 0, 2, 1} {
		r.Register(newTestConnection(id))
	}

	assert.Equal(t, 4, r.Len())
	assert.Equal(t, []uint64{0, 1, 3}, ids(r.Others(2)))
	assert.Equal(t, []uint64{0, 1, 2, 3}, ids(r.Others(99)))
	assert.Equal(t, []uint64{0, 1, 2, 3}, ids(r.All()))
}

func TestRegistrySetName(t *testing.T) {
	r := NewRegistry()
	c := newTestConnection(7)
	r.Register(c)

	_, named := c.ClaimedName()
	assert.False(t, named)

	assert.True(t, r.SetName(7, "alice"))
	assert.True(t, r.SetName(7, "bob"))
	name, named := c.ClaimedName()
	assert.True(t, named)
	assert.Equal(t, "bob", name)

	assert.False(t, r.SetName(8, "ghost"))
}

func TestRegistryRemoveIsIdempotentAndClosesQueue(t *testing.T) {
	r := NewRegistry()
	c := newTestConnection(1)
	r.Register(c)

	require.True(t, c.enqueue(protocol.Log("before")))

	assert.True(t, r.Remove(1))
	assert.False(t, r.Remove(1))
	assert.False(t, r.Remove(42))
	assert.Zero(t, r.Len())

	_, ok := r.Get(1)
	assert.False(t, ok)

	// Queued envelopes still drain, then the channel reports closed.
	msg, ok := <-c.queue
	assert.True(t, ok)
	assert.Equal(t, protocol.Log("before"), msg)
	_, ok = <-c.queue
	assert.False(t, ok)

	assert.False(t, c.enqueue(protocol.Log("after")))
}

func TestRegistryConcurrentJoinLeave(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := uint64(0); i < 100; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			c := newTestConnection(id)
			r.Register(c)
			r.SetName(id, "x")
			for _, other := range r.Others(id) {
				other.enqueue(protocol.Log("hi"))
			}
			if id%2 == 0 {
				r.Remove(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, r.Len())
	for _, c := range r.All() {
		assert.Equal(t, uint64(1), c.ID()%2)
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	c := newTestConnection(0)

	for i := 0; i < 10; i++ {
		require.True(t, c.enqueue(protocol.Log("fill")), "slot %d", i)
	}
	assert.False(t, c.enqueue(protocol.Log("overflow")))
	assert.Len(t, c.queue, 10)
}
