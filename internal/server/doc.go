// Package server implements the connection and state synchronization engine
// behind the countsync WebSocket service.
//
// A Hub owns the shared counter store and the connection registry. Every
// accepted connection runs two goroutines: an inbound loop that decodes
// envelopes and applies them, and a delivery loop that drains the
// connection's bounded outbound queue onto its transport. Broadcasts never
// block: a full queue drops the envelope for that recipient only.
package server
