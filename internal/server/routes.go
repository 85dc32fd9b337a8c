// Package server wires HTTP handlers into a ServeMux for the sync service
// via routing helpers.
package server

import (
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/Tyrowin/countsync/internal/metrics"
)

// SetupRoutes configures the application routes: health check, WebSocket
// endpoint, test page, and Prometheus metrics. CORS for the plain HTTP
// routes follows the same origin allowlist as the WebSocket upgrade.
func SetupRoutes(hub *Hub, m *metrics.Metrics, cfg Config, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", NewWebSocketHandler(hub, cfg, log))
	mux.HandleFunc("/test", TestPageHandler)
	mux.Handle("/metrics", m.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	})
	return c.Handler(mux)
}
