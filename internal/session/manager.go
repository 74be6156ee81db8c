package session

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/tapedeck/internal/audio"
	apperrors "github.com/GriffinCanCode/tapedeck/internal/errors"
	"github.com/GriffinCanCode/tapedeck/internal/playlist"
	"github.com/GriffinCanCode/tapedeck/internal/postprocess"
	"github.com/GriffinCanCode/tapedeck/internal/segment"
)

// Session control errors.
var (
	ErrRunning    = apperrors.New(apperrors.Unavailable, "a session is already running")
	ErrNotRunning = apperrors.New(apperrors.NotFound, "no session is running")
)

// Deps are the collaborators a Manager builds each session from.
type Deps struct {
	Playlist  func() (*playlist.Playlist, error)
	NewSource func() (audio.Source, error)
	Segment   segment.Config
	Encoder   postprocess.Encoder // nil disables post-processing
	Post      postprocess.Options

	HistorySize int
	EventBuffer int
}

// Manager runs at most one session at a time.
type Manager struct {
	deps    Deps
	history *History

	mu      sync.Mutex
	current *Session
}

// NewManager creates a manager.
func NewManager(deps Deps) *Manager {
	if deps.HistorySize <= 0 {
		deps.HistorySize = DefaultHistorySize
	}
	if deps.EventBuffer <= 0 {
		deps.EventBuffer = DefaultEventBuffer
	}
	return &Manager{
		deps:    deps,
		history: NewHistory(deps.HistorySize, deps.EventBuffer),
	}
}

// Start loads the playlist, opens capture and begins recording. Capture
// failures are returned before any frame is processed. ctx bounds the whole
// session, including post-processing.
func (m *Manager) Start(ctx context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.running(m.current) {
		return m.current.status(), ErrRunning
	}

	pl, err := m.deps.Playlist()
	if err != nil {
		return Status{}, err
	}
	src, err := m.deps.NewSource()
	if err != nil {
		return Status{}, apperrors.Wrap(err, apperrors.Backend, "create capture source")
	}

	s, err := newSession(m.deps, pl, src, m.history)
	if err != nil {
		_ = src.Stop()
		return Status{}, err
	}
	if err := s.start(ctx); err != nil {
		s.log.Error("capture failed to start", "error", err)
		// releases the host audio reference taken when the source was built
		_ = src.Stop()
		return Status{}, err
	}
	m.current = s
	return s.status(), nil
}

// Stop ends capture, finalizes a partially recorded track and waits for
// post-processing to drain or ctx to expire.
func (m *Manager) Stop(ctx context.Context) (Status, error) {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	if s == nil || !m.running(s) {
		return m.Status(), ErrNotRunning
	}

	s.requestStop()
	select {
	case <-s.Done():
	case <-ctx.Done():
		return s.status(), apperrors.Wrap(ctx.Err(), apperrors.Timeout, "waiting for session to stop")
	}
	return s.status(), s.Err()
}

// Wait blocks until the current session ends.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	select {
	case <-s.Done():
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports the current or most recent session.
func (m *Manager) Status() Status {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	if s == nil {
		return Status{State: "idle"}
	}
	return s.status()
}

// Running reports whether a session is capturing or post-processing.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.running(m.current)
}

// Events returns the live event stream shared by all sessions.
func (m *Manager) Events() <-chan Event { return m.history.Events() }

// History returns up to n recent events, oldest first.
func (m *Manager) History(n int) []Event { return m.history.Recent(n) }

func (m *Manager) running(s *Session) bool {
	select {
	case <-s.Done():
		return false
	default:
		return true
	}
}
