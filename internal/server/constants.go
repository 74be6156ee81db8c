// Package server exposes session control over HTTP and WebSocket, and a
// gRPC health endpoint that reflects capture state.
package server

import "time"

// Server configuration constants
const (
	// Per-connection inbound command limit on /ws
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Events replayed to a client when it connects
	HistoryOnConnect = 50

	WriteTimeout = 5 * time.Second
	StopTimeout  = 30 * time.Second

	// Health service name that is SERVING only while a session runs
	CaptureHealthService = "tapedeck.capture"
)
