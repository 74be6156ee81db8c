package segment

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/GriffinCanCode/tapedeck/internal/audio"
	apperrors "github.com/GriffinCanCode/tapedeck/internal/errors"
	"github.com/GriffinCanCode/tapedeck/internal/playlist"
)

// State of the segmenter for the current playlist index.
type State int

const (
	Idle      State = iota // no open sink
	Recording              // sink open and accepting writes
	Done                   // playlist exhausted or session stopped
	Failed                 // fatal I/O error; every later frame returns it
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config tunes boundary detection and output.
type Config struct {
	OutputDir              string
	Container              Container
	SilentRunThreshold     int
	TrackEndCheckThreshold int64
	MinimumValidTrackBytes int64
}

func (c Config) withDefaults() Config {
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.SilentRunThreshold <= 0 {
		c.SilentRunThreshold = DefaultSilentRunThreshold
	}
	if c.TrackEndCheckThreshold <= 0 {
		c.TrackEndCheckThreshold = DefaultTrackEndCheckThreshold
	}
	if c.MinimumValidTrackBytes <= 0 {
		c.MinimumValidTrackBytes = DefaultMinimumValidTrackBytes
	}
	return c
}

// Completed is emitted once per finalized track, in playlist order.
type Completed struct {
	Index   int
	Entry   playlist.Entry
	Path    string
	Bytes   int64
	Partial bool // finalized by Stop before a boundary was seen
}

// Hooks receive segmentation events. They run on the caller's goroutine
// while the segmenter lock is held and must not call back into it.
type Hooks struct {
	OnStart    func(index int, entry playlist.Entry, path string)
	OnComplete func(Completed)
	OnDiscard  func(index int, entry playlist.Entry, bytes int64)
}

// Stats counts what the segmenter has done with its input.
type Stats struct {
	Frames         int64
	BytesIn        int64
	DroppedBytes   int64 // leading silence while idle
	IgnoredFrames  int64 // frames after Done
	Finalized      int
	Discarded      int
	BytesFinalized int64
}

// Snapshot is a point-in-time view of the segmenter.
type Snapshot struct {
	State    State
	Index    int
	Total    int
	Written  int64
	Expected int64
	Stats    Stats
	Err      error
}

// trackSink is the subset of *Sink the segmenter drives.
type trackSink interface {
	Write(p []byte) (int, error)
	Finalize() error
	Discard() error
	Path() string
	Written() int64
}

// Segmenter decides, frame by frame, where one track ends and the next
// begins. OnFrame calls are serialized; callers must deliver frames in
// arrival order.
type Segmenter struct {
	mu     sync.Mutex
	pl     *playlist.Playlist
	format audio.Format
	cfg    Config
	hooks  Hooks
	paths  []string
	open   func(path string) (trackSink, error)
	log    *slog.Logger

	state    State
	index    int
	written  int64
	expected int64
	sink     trackSink
	stats    Stats
	err      error
}

// New creates a segmenter positioned at the first playlist entry.
func New(pl *playlist.Playlist, format audio.Format, cfg Config, hooks Hooks) (*Segmenter, error) {
	if pl == nil || pl.Len() == 0 {
		return nil, apperrors.New(apperrors.InvalidArgument, "playlist is empty")
	}
	if err := format.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.InvalidArgument, "capture format")
	}
	cfg = cfg.withDefaults()

	s := &Segmenter{
		pl:     pl,
		format: format,
		cfg:    cfg,
		hooks:  hooks,
		paths:  trackPaths(cfg.OutputDir, pl, cfg.Container),
		log:    slog.Default(),
	}
	s.open = func(path string) (trackSink, error) {
		return OpenSink(path, format, cfg.Container)
	}
	s.expected = s.expectedBytes()
	return s, nil
}

// WithLogger replaces the default logger.
func (s *Segmenter) WithLogger(l *slog.Logger) *Segmenter {
	s.log = l
	return s
}

// OnFrame consumes one capture buffer.
func (s *Segmenter) OnFrame(frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Failed:
		return s.err
	case Done:
		s.stats.IgnoredFrames++
		return nil
	}

	s.stats.Frames++
	s.stats.BytesIn += int64(frame.Len())
	if err := s.process(frame.Data); err != nil {
		s.fail(err)
		return s.err
	}
	return nil
}

// process runs the per-frame algorithm. A boundary inside buf finishes the
// current track and the remainder after the silence run is processed again
// against the next index, so audio at the start of a track is never lost.
func (s *Segmenter) process(buf []byte) error {
	for len(buf) > 0 && s.state != Done {
		if s.state == Idle {
			if IsSilent(buf) {
				s.stats.DroppedBytes += int64(len(buf))
				return nil
			}
			if err := s.startTrack(); err != nil {
				return err
			}
		}

		if s.expected-s.written > s.cfg.TrackEndCheckThreshold {
			return s.write(buf)
		}

		start, end, ok := FirstSilenceRun(buf, s.cfg.SilentRunThreshold)
		if !ok {
			return s.write(buf)
		}
		if err := s.write(buf[:start]); err != nil {
			return err
		}
		if err := s.endTrack(); err != nil {
			return err
		}
		buf = buf[end:]
	}
	return nil
}

func (s *Segmenter) startTrack() error {
	path := s.paths[s.index]
	sink, err := s.open(path)
	if err != nil {
		return err
	}
	s.sink = sink
	s.written = 0
	s.state = Recording

	entry := s.pl.At(s.index)
	s.log.Info("track recording started", "index", s.index, "title", entry.Title, "path", path, "expected_bytes", s.expected)
	if s.hooks.OnStart != nil {
		s.hooks.OnStart(s.index, entry, path)
	}
	return nil
}

func (s *Segmenter) write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := s.sink.Write(p)
	s.written += int64(n)
	return err
}

// endTrack closes the current sink at a detected boundary.
func (s *Segmenter) endTrack() error {
	if s.written < s.minimumBytes() {
		return s.discardTrack()
	}
	return s.finalizeTrack(false)
}

// discardTrack drops an undersized take and waits for the same index again.
func (s *Segmenter) discardTrack() error {
	entry := s.pl.At(s.index)
	sink := s.sink
	bytes := sink.Written()
	s.sink, s.written, s.state = nil, 0, Idle

	s.stats.Discarded++
	s.log.Warn("discarding undersized track", "index", s.index, "title", entry.Title,
		"bytes", bytes, "minimum", s.minimumBytes())
	if err := sink.Discard(); err != nil {
		return err
	}
	if s.hooks.OnDiscard != nil {
		s.hooks.OnDiscard(s.index, entry, bytes)
	}
	return nil
}

func (s *Segmenter) finalizeTrack(partial bool) error {
	entry := s.pl.At(s.index)
	sink := s.sink
	bytes := sink.Written()
	s.sink = nil

	if err := sink.Finalize(); err != nil {
		_ = sink.Discard()
		s.written, s.state = 0, Idle
		return err
	}

	done := Completed{Index: s.index, Entry: entry, Path: sink.Path(), Bytes: bytes, Partial: partial}
	s.stats.Finalized++
	s.stats.BytesFinalized += bytes
	s.log.Info("track finalized", "index", s.index, "title", entry.Title, "bytes", bytes,
		"expected_bytes", s.expected, "partial", partial)

	s.index++
	s.written = 0
	if s.index >= s.pl.Len() {
		s.state = Done
		s.log.Info("playlist complete", "tracks", s.stats.Finalized)
	} else {
		s.state = Idle
		s.expected = s.expectedBytes()
	}

	if s.hooks.OnComplete != nil {
		s.hooks.OnComplete(done)
	}
	return nil
}

// fail discards any open sink so no incomplete file survives under a
// finalized name, and latches the error.
func (s *Segmenter) fail(cause error) {
	if s.sink != nil {
		if err := s.sink.Discard(); err != nil {
			s.log.Error("discard after failure", "path", s.sink.Path(), "error", err)
		}
		s.sink = nil
	}
	s.written = 0
	s.state = Failed
	s.err = apperrors.Wrapf(cause, apperrors.IO, "segmentation aborted at track %d", s.index).
		WithMetadata("playlist_index", strconv.Itoa(s.index))
	s.log.Error("segmentation failed", "index", s.index, "error", cause)
}

// Stop ends the session. A track still recording is finalized, not
// discarded, so a user stop never loses captured audio.
func (s *Segmenter) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Failed:
		return s.err
	case Recording:
		if err := s.finalizeTrack(true); err != nil {
			s.fail(err)
			return s.err
		}
	}
	s.state = Done
	return nil
}

// Abort ends the session after an external fatal error. A track still
// recording is discarded.
func (s *Segmenter) Abort(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Failed {
		return
	}
	if s.sink != nil {
		_ = s.sink.Discard()
		s.sink = nil
	}
	s.written = 0
	s.state = Failed
	s.err = cause
	s.log.Error("segmentation aborted", "index", s.index, "error", cause)
}

// Snapshot returns the current state.
func (s *Segmenter) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:    s.state,
		Index:    s.index,
		Total:    s.pl.Len(),
		Written:  s.written,
		Expected: s.expected,
		Stats:    s.stats,
		Err:      s.err,
	}
}

// Finished reports whether no further frames will be recorded.
func (s *Segmenter) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Done || s.state == Failed
}

// Path returns the output path assigned to playlist index i.
func (s *Segmenter) Path(i int) string { return s.paths[i] }

func (s *Segmenter) expectedBytes() int64 {
	return s.format.BytesFor(s.pl.At(s.index).Duration)
}

// minimumBytes is the misfire floor for the current track, never more than
// half of its expected length.
func (s *Segmenter) minimumBytes() int64 {
	return min(s.cfg.MinimumValidTrackBytes, s.expected/2)
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s track %d/%d (%d/%d bytes)", s.State, s.Index, s.Total, s.Written, s.Expected)
}
