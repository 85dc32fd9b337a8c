// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// NewWebSocketHandler upgrades GET requests from allowed origins and hands
// the resulting connection to hub.
func NewWebSocketHandler(hub *Hub, cfg Config, log *slog.Logger) http.HandlerFunc {
	policy := newOriginPolicy(cfg.AllowedOrigins, log)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.check,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		select {
		case <-hub.Done():
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		default:
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("ws.upgrade", "err", err, "addr", r.RemoteAddr)
			return
		}

		t, err := newWSTransport(conn, hub.cfg)
		if err != nil {
			log.Warn("ws.setup", "err", err, "addr", r.RemoteAddr)
			_ = conn.Close()
			return
		}

		if _, err := hub.Serve(t, r.RemoteAddr); err != nil {
			log.Info("ws.rejected", "err", err, "addr", r.RemoteAddr)
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "countsync server is running!")
}

// TestPageHandler serves a small HTML client for poking at the WebSocket
// endpoint by hand: claim a name, add to the counter, and chat.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPage)
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>countsync test client</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .pane { border: 1px solid #ccc; height: 200px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        input[type="text"] { width: 240px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        table { border-collapse: collapse; }
        td { padding: 2px 10px; border-bottom: 1px solid #eee; }
    </style>
</head>
<body>
    <h1>countsync test client</h1>

    <div>
        <input type="text" id="name" placeholder="Your name">
        <button onclick="claim()">Set name</button>
        <button onclick="add(1)">+1</button>
        <button onclick="add(10)">+10</button>
    </div>

    <h3>Scores</h3>
    <table id="scores"></table>

    <h3>Chat</h3>
    <div>
        <input type="text" id="chat" placeholder="Say something...">
        <button onclick="say()">Send</button>
    </div>
    <div id="messages" class="pane"></div>

    <h3>Log</h3>
    <div id="logs" class="pane"></div>

    <script>
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');

        function line(id, text) {
            const el = document.createElement('div');
            el.textContent = text;
            const pane = document.getElementById(id);
            pane.appendChild(el);
            pane.scrollTop = pane.scrollHeight;
        }

        function render(state) {
            const table = document.getElementById('scores');
            table.innerHTML = '';
            Object.keys(state).sort().forEach(function (name) {
                const row = table.insertRow();
                row.insertCell().textContent = name;
                row.insertCell().textContent = state[name];
            });
        }

        ws.onmessage = function (event) {
            const msg = JSON.parse(event.data);
            if (msg.type === 'UpdateState') {
                render(msg.new_state);
            } else if (msg.type === 'Log') {
                line('logs', msg.message);
            } else if (msg.type === 'ChatMessage') {
                line('messages', msg.username + ': ' + msg.message);
            }
        };
        ws.onclose = function () { line('logs', 'Connection closed'); };

        function claim() {
            ws.send(JSON.stringify({ type: 'SetName', data: document.getElementById('name').value }));
        }
        function add(n) {
            ws.send(JSON.stringify({ type: 'AddCount', data: n }));
        }
        function say() {
            const input = document.getElementById('chat');
            ws.send(JSON.stringify({ type: 'SendMessage', data: input.value }));
            line('messages', 'You: ' + input.value);
            input.value = '';
        }
    </script>
</body>
</html>`
