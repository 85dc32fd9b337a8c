// Package testhelpers provides WebSocket client utilities shared by the
// server's end-to-end tests.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/countsync/internal/protocol"
)

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:7776"

// WebSocketURL turns an httptest server URL into its /ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// ConnectWebSocket dials url with TestOrigin set.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect dials url and consumes the greeting (snapshot and identity
// log), returning both.
func MustConnect(t *testing.T, url string) (*websocket.Conn, protocol.ServerMessage, protocol.ServerMessage) {
	t.Helper()

	conn, err := ConnectWebSocket(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	snapshot := Receive(t, conn)
	require.Equal(t, protocol.TypeUpdateState, snapshot.Type)
	identity := Receive(t, conn)
	require.Equal(t, protocol.TypeLog, identity.Type)
	return conn, snapshot, identity
}

// Send writes one client envelope.
func Send(t *testing.T, conn *websocket.Conn, msg protocol.ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

// SendRaw writes an arbitrary text frame.
func SendRaw(t *testing.T, conn *websocket.Conn, data []byte) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// Receive reads the next server envelope, failing after two seconds.
func Receive(t *testing.T, conn *websocket.Conn) protocol.ServerMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg protocol.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg), "payload %s", data)
	return msg
}

// ExpectNoMessage fails if an envelope arrives within wait. A read timeout
// poisons a gorilla connection, so call it last on conn.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %s", data)
	}
}

// CloseWebSocket sends a normal close frame and closes the socket.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
