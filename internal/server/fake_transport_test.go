package server

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/countsync/internal/logging"
	"github.com/Tyrowin/countsync/internal/metrics"
	"github.com/Tyrowin/countsync/internal/protocol"
)

var errFakeClosed = errors.New("use of closed network connection")

// fakeTransport is an in-memory Transport. Tests push inbound payloads with
// push and pull delivered envelopes with next.
type fakeTransport struct {
	inbound  chan []byte
	outbound chan []byte
	closed   chan struct{}
	once     sync.Once

	mu        sync.Mutex
	failWrite bool
	block     chan struct{} // when non-nil, writes wait on it
	stalled   int           // writes that have waited on block
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound:  make(chan []byte, 64),
		outbound: make(chan []byte, 256),
		closed:   make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case data := <-f.inbound:
		return data, nil
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	fail, block := f.failWrite, f.block
	if block != nil {
		f.stalled++
	}
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-f.closed:
		}
	}

	select {
	case <-f.closed:
		return errFakeClosed
	default:
	}
	if fail {
		return errors.New("write failed")
	}

	select {
	case f.outbound <- data:
		return nil
	case <-f.closed:
		return errFakeClosed
	}
}

func (f *fakeTransport) Ping() error { return nil }

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) stalledWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stalled
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) push(t *testing.T, msg protocol.ClientMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	f.inbound <- data
}

func (f *fakeTransport) pushRaw(data string) {
	f.inbound <- []byte(data)
}

func (f *fakeTransport) next(t *testing.T) protocol.ServerMessage {
	t.Helper()
	select {
	case data := <-f.outbound:
		var msg protocol.ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg), "payload %s", data)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an outbound envelope")
		return protocol.ServerMessage{}
	}
}

func (f *fakeTransport) expectNothing(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case data := <-f.outbound:
		t.Fatalf("expected no envelope, got %s", data)
	case <-time.After(wait):
	}
}

func testConfig() Config {
	cfg := *NewConfig()
	cfg.RateLimit.Burst = 10000
	return cfg
}

func newTestHub(t *testing.T, cfg Config) (*Hub, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	h := NewHub(cfg, logging.Discard(), m)
	t.Cleanup(func() { _ = h.Shutdown(2 * time.Second) })
	return h, m
}

// join serves a fresh fake transport and consumes its greeting.
func join(t *testing.T, h *Hub) (*Connection, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	c, err := h.Serve(ft, "pipe")
	require.NoError(t, err)

	require.Equal(t, protocol.TypeUpdateState, ft.next(t).Type)
	require.Equal(t, protocol.TypeLog, ft.next(t).Type)
	return c, ft
}
