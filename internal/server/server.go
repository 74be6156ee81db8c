package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/tapedeck/internal/audio"
	apperrors "github.com/GriffinCanCode/tapedeck/internal/errors"
	"github.com/GriffinCanCode/tapedeck/internal/session"
	"github.com/GriffinCanCode/tapedeck/internal/trace"
)

// Controller is the session surface the server drives.
type Controller interface {
	Start(ctx context.Context) (session.Status, error)
	Stop(ctx context.Context) (session.Status, error)
	Status() session.Status
	History(n int) []session.Event
	Events() <-chan session.Event
}

// DeviceLister enumerates capture devices.
type DeviceLister func() ([]audio.DeviceInfo, error)

// Message is the envelope for inbound WebSocket commands.
type Message struct {
	Type string `json:"type"`
}

// EventMessage wraps a session event for WebSocket clients.
type EventMessage struct {
	Type  string        `json:"type"`
	Event session.Event `json:"event"`
}

// StatusMessage carries a status snapshot.
type StatusMessage struct {
	Type   string         `json:"type"`
	Status session.Status `json:"status"`
}

// ErrorMessage reports a failed command.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	ctrl    Controller
	devices DeviceLister
	health  *Health
	baseCtx context.Context

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// New creates a server. Sessions started over HTTP live for baseCtx, not
// for the triggering request. health may be nil.
func New(baseCtx context.Context, ctrl Controller, devices DeviceLister, health *Health) *Server {
	s := &Server{
		ctrl:    ctrl,
		devices: devices,
		health:  health,
		baseCtx: baseCtx,
		conns:   make(map[*websocket.Conn]struct{}),
	}
	go s.broadcastEvents()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("POST /api/session/start", s.handleStart)
	mux.HandleFunc("POST /api/session/stop", s.handleStop)
	mux.HandleFunc("GET /api/session", s.handleStatus)
	mux.HandleFunc("GET /api/session/events", s.handleEvents)
	mux.HandleFunc("GET /api/devices", s.handleDevices)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctrl.Start(s.baseCtx)
	if err != nil {
		trace.Logger(r.Context()).Warn("session start rejected", "error", err)
		writeError(w, err)
		return
	}
	trace.Logger(r.Context()).Info("session started", "session_id", st.SessionID)
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), StopTimeout)
	defer cancel()

	st, err := s.ctrl.Stop(ctx)
	if err != nil && errors.Is(err, session.ErrNotRunning) {
		writeError(w, err)
		return
	}
	if err != nil {
		// the session ended; report how far it got alongside the failure
		st.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	n := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, apperrors.Newf(apperrors.InvalidArgument, "invalid limit %q", v))
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, s.ctrl.History(n))
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	if s.devices == nil {
		writeJSON(w, http.StatusOK, []audio.DeviceInfo{})
		return
	}
	devices, err := s.devices()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	// replay before registering so history and live events do not interleave
	_ = wsjson.Write(baseCtx, conn, StatusMessage{Type: "status", Status: s.ctrl.Status()})
	for _, e := range s.ctrl.History(HistoryOnConnect) {
		_ = wsjson.Write(baseCtx, conn, EventMessage{Type: "event", Event: e})
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	rl := &rateLimiter{}
	for {
		var msg Message
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		s.handleCommand(baseCtx, conn, msg.Type)
	}
}

func (s *Server) handleCommand(ctx context.Context, conn *websocket.Conn, cmd string) {
	var (
		st  session.Status
		err error
	)
	switch cmd {
	case "start":
		st, err = s.ctrl.Start(s.baseCtx)
	case "stop":
		stopCtx, cancel := context.WithTimeout(ctx, StopTimeout)
		st, err = s.ctrl.Stop(stopCtx)
		cancel()
	case "status":
		st = s.ctrl.Status()
	default:
		err = apperrors.Newf(apperrors.InvalidArgument, "unknown command %q", cmd)
	}

	if err != nil {
		_ = wsjson.Write(ctx, conn, errorMessage(err))
		return
	}
	_ = wsjson.Write(ctx, conn, StatusMessage{Type: "status", Status: st})
}

func (s *Server) broadcastEvents() {
	for evt := range s.ctrl.Events() {
		if s.health != nil {
			switch evt.Type {
			case session.EventSessionStarted:
				s.health.SetCapturing(true)
			case session.EventSessionStopped, session.EventSessionFailed:
				s.health.SetCapturing(false)
			}
		}

		msg := EventMessage{Type: "event", Event: evt}
		s.mu.RLock()
		for conn := range s.conns {
			go func(c *websocket.Conn) {
				ctx, cancel := context.WithTimeout(context.Background(), WriteTimeout)
				defer cancel()
				_ = wsjson.Write(ctx, c, msg)
			}(conn)
		}
		s.mu.RUnlock()
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), errorMessage(err))
}

func errorMessage(err error) ErrorMessage {
	msg := ErrorMessage{Type: "error", Message: err.Error()}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg.Code = appErr.Code.String()
	}
	return msg
}

func httpStatus(err error) int {
	if errors.Is(err, session.ErrRunning) {
		return http.StatusConflict
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case apperrors.InvalidArgument, apperrors.Format:
		return http.StatusBadRequest
	case apperrors.NotFound:
		return http.StatusNotFound
	case apperrors.Unavailable, apperrors.Backend:
		return http.StatusServiceUnavailable
	case apperrors.Timeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
