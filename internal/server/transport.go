package server

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the per-connection framing layer the hub depends on: receive
// the next message, send one message, keep the peer alive, and close.
//
// ReadMessage is called only from the connection's inbound loop. WriteMessage
// is called from a single goroutine at a time. Ping and Close may be called
// concurrently with either.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Ping() error
	Close() error
}

// wsTransport adapts a gorilla/websocket connection.
type wsTransport struct {
	conn     *websocket.Conn
	pongWait time.Duration
}

func newWSTransport(conn *websocket.Conn, cfg Config) (*wsTransport, error) {
	t := &wsTransport{conn: conn, pongWait: cfg.PongWait}
	conn.SetReadLimit(cfg.MaxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(t.pongWait)); err != nil {
		return nil, err
	}
	conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(t.pongWait))
	})
	return t, nil
}

// ReadMessage returns the next text or binary frame. Control frames are
// handled by gorilla's handlers and never surface here.
func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close sends a best-effort close frame and releases the socket.
func (t *wsTransport) Close() error {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return t.conn.Close()
}

// readErrorKind classifies an inbound transport failure for logging. Every
// kind is fatal to the connection.
func readErrorKind(err error) string {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		return "read_limit"
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		return "closed"
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		return "eof"
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway):
		return "unexpected_close"
	default:
		return "read_error"
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
