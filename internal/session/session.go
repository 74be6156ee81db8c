package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/tapedeck/internal/audio"
	apperrors "github.com/GriffinCanCode/tapedeck/internal/errors"
	"github.com/GriffinCanCode/tapedeck/internal/playlist"
	"github.com/GriffinCanCode/tapedeck/internal/postprocess"
	"github.com/GriffinCanCode/tapedeck/internal/segment"
	"github.com/GriffinCanCode/tapedeck/internal/syncx"
	"github.com/GriffinCanCode/tapedeck/internal/trace"
)

// Status is a point-in-time view of a session.
type Status struct {
	SessionID     string    `json:"session_id,omitempty"`
	Running       bool      `json:"running"`
	State         string    `json:"state"`
	Playlist      string    `json:"playlist,omitempty"`
	Index         int       `json:"index"`
	Total         int       `json:"total"`
	Title         string    `json:"title,omitempty"`
	Written       int64     `json:"written"`
	Expected      int64     `json:"expected"`
	Finalized     int       `json:"finalized"`
	Discarded     int       `json:"discarded"`
	Encoded       int       `json:"encoded"`
	EncodeFailed  int       `json:"encode_failed"`
	Archived      int       `json:"archived"`
	ArchiveFailed int       `json:"archive_failed"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

type counters struct {
	encoded       int
	encodeFailed  int
	archived      int
	archiveFailed int
	lastErr       error
}

// Session is one capture run over one playlist. It is not reused.
type Session struct {
	id        uuid.UUID
	pl        *playlist.Playlist
	src       audio.Source
	seg       *segment.Segmenter
	proc      *postprocess.Processor
	history   *History
	log       *slog.Logger
	startedAt time.Time

	completed chan segment.Completed
	counters  *syncx.Guard[counters]
	stopOnce  sync.Once
	stopping  atomic.Bool
	done      chan struct{}
}

func newSession(deps Deps, pl *playlist.Playlist, src audio.Source, history *History) (*Session, error) {
	id := uuid.New()
	ctx := trace.WithContext(context.Background(), trace.ForSession(id))
	log := trace.Logger(ctx).With("session_id", id.String(), "playlist", pl.Name)

	s := &Session{
		id:        id,
		pl:        pl,
		src:       src,
		history:   history,
		log:       log,
		completed: make(chan segment.Completed, pl.Len()),
		counters:  syncx.NewGuard(counters{}),
		done:      make(chan struct{}),
	}

	seg, err := segment.New(pl, src.Format(), deps.Segment, segment.Hooks{
		OnStart:    s.onTrackStart,
		OnComplete: s.onTrackComplete,
		OnDiscard:  s.onTrackDiscard,
	})
	if err != nil {
		return nil, err
	}
	s.seg = seg.WithLogger(log)

	if deps.Encoder != nil {
		opts := deps.Post
		opts.Format = src.Format()
		opts.Container = deps.Segment.Container
		opts.TrackTotal = pl.Len()
		if opts.KeyPrefix == "" {
			opts.KeyPrefix = pl.Name
		}
		opts.OnResult = s.onResult
		s.proc = postprocess.NewProcessor(deps.Encoder, opts).WithLogger(log)
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id.String() }

// Done is closed once capture, segmentation and post-processing have ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the fatal error that ended the session, if any.
func (s *Session) Err() error {
	return s.counters.Load().lastErr
}

func (s *Session) start(ctx context.Context) error {
	if err := s.src.Start(ctx); err != nil {
		if !apperrors.IsCode(err, apperrors.Backend) {
			err = apperrors.Wrap(err, apperrors.Backend, "start capture")
		}
		return err
	}
	s.startedAt = time.Now()
	s.log.Info("session started", "tracks", s.pl.Len(), "format", s.src.Format().String())
	s.history.Add(Event{Type: EventSessionStarted, SessionID: s.ID(), Title: s.pl.Name})

	go s.run(ctx)
	return nil
}

// run is the single consumer of the capture queue; frames reach the
// segmenter strictly in arrival order.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	procDone := make(chan struct{})
	go func() {
		defer close(procDone)
		if s.proc == nil {
			for range s.completed {
			}
			return
		}
		if err := s.proc.Run(ctx, s.completed); err != nil {
			s.log.Warn("post-processing interrupted", "error", err)
		}
	}()

	for frame := range s.src.Frames() {
		if err := s.seg.OnFrame(frame); err != nil {
			s.requestStop()
			continue
		}
		if s.seg.Finished() {
			s.requestStop()
		}
	}

	if s.stopping.Load() || ctx.Err() != nil {
		_ = s.seg.Stop()
	} else {
		s.seg.Abort(apperrors.New(apperrors.Backend, "capture ended unexpectedly"))
	}

	snap := s.seg.Snapshot()
	if snap.Err != nil {
		s.counters.Update(func(c *counters) { c.lastErr = snap.Err })
	}
	close(s.completed)
	<-procDone

	if snap.Err != nil {
		s.log.Error("session failed", "index", snap.Index, "error", snap.Err)
		s.history.Add(Event{Type: EventSessionFailed, SessionID: s.ID(), Index: snap.Index, Error: snap.Err.Error()})
		return
	}
	s.log.Info("session stopped", "index", snap.Index, "finalized", snap.Stats.Finalized, "discarded", snap.Stats.Discarded)
	s.history.Add(Event{Type: EventSessionStopped, SessionID: s.ID(), Index: snap.Index})
}

// requestStop ends capture; queued frames are still drained by run.
func (s *Session) requestStop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		if err := s.src.Stop(); err != nil {
			s.log.Warn("stop capture", "error", err)
		}
	})
}

func (s *Session) onTrackStart(index int, entry playlist.Entry, path string) {
	s.history.Add(Event{Type: EventTrackStarted, SessionID: s.ID(), Index: index, Title: entry.Title, Path: path})
}

// onTrackComplete runs under the segmenter lock; the channel holds one slot
// per playlist entry so the send never blocks.
func (s *Session) onTrackComplete(c segment.Completed) {
	s.completed <- c
	s.history.Add(Event{
		Type: EventTrackCompleted, SessionID: s.ID(), Index: c.Index,
		Title: c.Entry.Title, Path: c.Path, Bytes: c.Bytes, Partial: c.Partial,
	})
}

func (s *Session) onTrackDiscard(index int, entry playlist.Entry, bytes int64) {
	s.history.Add(Event{Type: EventTrackDiscarded, SessionID: s.ID(), Index: index, Title: entry.Title, Bytes: bytes})
}

func (s *Session) onResult(r postprocess.Result) {
	e := Event{SessionID: s.ID(), Index: r.Track.Index, Title: r.Track.Entry.Title, Path: r.Output}
	switch {
	case r.Output == "":
		e.Type = EventEncodeFailed
		e.Path = r.Track.Path
		e.Error = r.Err.Error()
		s.counters.Update(func(c *counters) { c.encodeFailed++ })
	case r.IsArchiveError():
		e.Type = EventArchiveFailed
		e.Error = r.Err.Error()
		s.counters.Update(func(c *counters) { c.encoded++; c.archiveFailed++ })
	default:
		e.Type = EventTrackEncoded
		s.counters.Update(func(c *counters) {
			c.encoded++
			if r.Uploaded {
				c.archived++
			}
		})
	}
	s.history.Add(e)
}

func (s *Session) status() Status {
	snap := s.seg.Snapshot()
	c := s.counters.Load()

	st := Status{
		SessionID:     s.ID(),
		State:         snap.State.String(),
		Playlist:      s.pl.Name,
		Index:         snap.Index,
		Total:         snap.Total,
		Written:       snap.Written,
		Expected:      snap.Expected,
		Finalized:     snap.Stats.Finalized,
		Discarded:     snap.Stats.Discarded,
		Encoded:       c.encoded,
		EncodeFailed:  c.encodeFailed,
		Archived:      c.archived,
		ArchiveFailed: c.archiveFailed,
		StartedAt:     s.startedAt,
	}
	if snap.Index < snap.Total {
		st.Title = s.pl.At(snap.Index).Title
	}
	select {
	case <-s.done:
	default:
		st.Running = true
	}
	if snap.Err != nil {
		st.LastError = snap.Err.Error()
	}
	return st
}
