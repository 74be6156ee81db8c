package session

import (
	"sync"
	"time"
)

// EventType names a session lifecycle event.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventTrackStarted   EventType = "track_started"
	EventTrackCompleted EventType = "track_completed"
	EventTrackDiscarded EventType = "track_discarded"
	EventTrackEncoded   EventType = "track_encoded"
	EventEncodeFailed   EventType = "encode_failed"
	EventArchiveFailed  EventType = "archive_failed"
	EventSessionStopped EventType = "session_stopped"
	EventSessionFailed  EventType = "session_failed"
)

// Event is one entry in the session log.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Time      time.Time `json:"time"`
	Index     int       `json:"index"`
	Title     string    `json:"title,omitempty"`
	Path      string    `json:"path,omitempty"`
	Bytes     int64     `json:"bytes,omitempty"`
	Partial   bool      `json:"partial,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// History keeps the most recent events and fans them out on a channel.
type History struct {
	mu       sync.RWMutex
	entries  []Event
	maxSize  int
	eventsCh chan Event
}

// NewHistory creates a history holding at most maxEntries events.
func NewHistory(maxEntries, eventBuffer int) *History {
	return &History{
		entries:  make([]Event, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Event, eventBuffer),
	}
}

// Add records e and emits it.
func (h *History) Add(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	h.mu.Lock()
	h.entries = append(h.entries, e)
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[len(h.entries)-h.maxSize:]
	}
	h.mu.Unlock()

	h.emit(e)
}

// Events returns the live event channel. Slow readers miss events; the
// history still has them.
func (h *History) Events() <-chan Event {
	return h.eventsCh
}

func (h *History) emit(e Event) {
	select {
	case h.eventsCh <- e:
	default:
	}
}

// Recent returns up to n of the newest events, oldest first. n <= 0 means all.
func (h *History) Recent(n int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	start := 0
	if n > 0 && n < len(h.entries) {
		start = len(h.entries) - n
	}
	out := make([]Event, len(h.entries)-start)
	copy(out, h.entries[start:])
	return out
}
