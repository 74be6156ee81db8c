package segment

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/tapedeck/internal/audio"
	apperrors "github.com/GriffinCanCode/tapedeck/internal/errors"
	"github.com/GriffinCanCode/tapedeck/internal/playlist"
)

type recorder struct {
	started   []int
	completed []Completed
	discarded []int
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnStart:    func(i int, _ playlist.Entry, _ string) { r.started = append(r.started, i) },
		OnComplete: func(c Completed) { r.completed = append(r.completed, c) },
		OnDiscard:  func(i int, _ playlist.Entry, _ int64) { r.discarded = append(r.discarded, i) },
	}
}

func newTestSegmenter(t *testing.T, cfg Config, durations ...time.Duration) (*Segmenter, *recorder) {
	t.Helper()
	entries := make([]playlist.Entry, len(durations))
	for i, d := range durations {
		entries[i] = playlist.Entry{Title: "Track " + string(rune('A'+i)), Duration: d}
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = t.TempDir()
	}
	cfg.Container = ContainerRaw

	rec := &recorder{}
	s, err := New(playlist.New("test", entries), testFormat, cfg, rec.hooks())
	require.NoError(t, err)
	return s, rec
}

func feed(t *testing.T, s *Segmenter, frames ...[]byte) {
	t.Helper()
	for _, f := range frames {
		require.NoError(t, s.OnFrame(audio.Frame{Data: f}))
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func TestEndToEndTwoTracks(t *testing.T) {
	s, rec := newTestSegmenter(t, Config{}, 2*time.Second, 3*time.Second)

	track1, track2 := noise(32000, 1), noise(48000, 2)
	feed(t, s, track1, zeros(400), track2, zeros(400))

	require.Len(t, rec.completed, 2)
	assert.Empty(t, rec.discarded)
	assert.Equal(t, 0, rec.completed[0].Index)
	assert.Equal(t, 1, rec.completed[1].Index)
	assert.Equal(t, int64(32000), rec.completed[0].Bytes)
	assert.Equal(t, int64(48000), rec.completed[1].Bytes)

	assert.Equal(t, track1, readFile(t, rec.completed[0].Path))
	assert.Equal(t, track2, readFile(t, rec.completed[1].Path))

	snap := s.Snapshot()
	assert.Equal(t, Done, snap.State)
	assert.Equal(t, int64(len(track1)+len(track2)+800), snap.Stats.BytesIn)
	assert.Equal(t, int64(len(track1)+len(track2)), snap.Stats.BytesFinalized)
	assert.Equal(t, 2, snap.Index)
	assert.True(t, s.Finished())
}

func TestLeadingSilenceOpensNothing(t *testing.T) {
	s, rec := newTestSegmenter(t, Config{}, 10*time.Second)

	feed(t, s, zeros(4096), zeros(4096))

	assert.Empty(t, rec.started)
	assert.Equal(t, Idle, s.Snapshot().State)
	assert.Equal(t, int64(8192), s.Snapshot().Stats.DroppedBytes)
	entries, _ := os.ReadDir(s.cfg.OutputDir)
	assert.Empty(t, entries)
}

func TestConservationSingleTrack(t *testing.T) {
	s, rec := newTestSegmenter(t, Config{}, 5*time.Second) // 80000 bytes

	var want []byte
	frames := [][]byte{zeros(2048), zeros(100)}
	for i, n := range []int{7000, 12345, 30000, 3, 20652} {
		f := noise(n, uint64(i+10))
		if n > 64 {
			copy(f[n/2:], zeros(40)) // quiet dip below the run threshold
		}
		frames = append(frames, f)
		want = append(want, f...)
	}
	frames = append(frames, zeros(1000))
	feed(t, s, frames...)

	require.Len(t, rec.completed, 1)
	assert.Equal(t, int64(len(want)), rec.completed[0].Bytes)
	assert.Equal(t, want, readFile(t, rec.completed[0].Path))
}

func TestBoundarySplitMidBuffer(t *testing.T) {
	s, rec := newTestSegmenter(t, Config{}, 10*time.Second, 10*time.Second) // 160000 each

	head := noise(150000, 1)
	tail := noise(20000, 2)
	residue := noise(5000, 3)
	feed(t, s, head, concat(tail, zeros(400), residue))

	require.Len(t, rec.completed, 1)
	assert.Equal(t, concat(head, tail), readFile(t, rec.completed[0].Path))

	snap := s.Snapshot()
	assert.Equal(t, Recording, snap.State)
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, int64(5000), snap.Written)

	require.NoError(t, s.Stop())
	require.Len(t, rec.completed, 2)
	assert.True(t, rec.completed[1].Partial)
	assert.Equal(t, residue, readFile(t, s.Path(1)))
}

func TestNoBoundaryCheckFarFromEnd(t *testing.T) {
	s, rec := newTestSegmenter(t, Config{}, 60*time.Second) // 960000 bytes

	feed(t, s, noise(10000, 1), zeros(5000), noise(10000, 2))

	assert.Empty(t, rec.completed)
	assert.Equal(t, int64(25000), s.Snapshot().Written)
}

func TestTrackRunningLongKeepsWriting(t *testing.T) {
	s, rec := newTestSegmenter(t, Config{}, 2*time.Second)

	feed(t, s, noise(32000, 1), noise(8000, 2))
	assert.Empty(t, rec.completed)
	assert.Equal(t, int64(40000), s.Snapshot().Written)

	feed(t, s, zeros(400))
	require.Len(t, rec.completed, 1)
	assert.Equal(t, int64(40000), rec.completed[0].Bytes)
}

func TestUndersizedTrackDiscardedAndRetried(t *testing.T) {
	cfg := Config{TrackEndCheckThreshold: 10_000_000}
	s, rec := newTestSegmenter(t, cfg, 10*time.Second) // floor min(100000, 80000)

	feed(t, s, concat(noise(1000, 1), zeros(400)))

	assert.Empty(t, rec.completed)
	assert.Equal(t, []int{0}, rec.discarded)
	_, err := os.Stat(s.Path(0))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 0, s.Snapshot().Index)
	assert.Equal(t, Idle, s.Snapshot().State)

	take := noise(90000, 2)
	feed(t, s, take, zeros(400))

	require.Len(t, rec.completed, 1)
	assert.Equal(t, 0, rec.completed[0].Index)
	assert.Equal(t, take, readFile(t, rec.completed[0].Path))
	assert.Equal(t, 1, s.Snapshot().Stats.Discarded)
}

func TestMisfireResidueReopensSameIndex(t *testing.T) {
	cfg := Config{TrackEndCheckThreshold: 10_000_000}
	s, rec := newTestSegmenter(t, cfg, 10*time.Second)

	after := noise(3000, 2)
	feed(t, s, concat(noise(500, 1), zeros(200), after))

	assert.Equal(t, []int{0}, rec.discarded)
	assert.Equal(t, []int{0, 0}, rec.started)
	assert.Equal(t, Recording, s.Snapshot().State)
	assert.Equal(t, int64(3000), s.Snapshot().Written)
}

func TestFramesAfterDoneIgnored(t *testing.T) {
	s, rec := newTestSegmenter(t, Config{}, 1*time.Second)

	feed(t, s, noise(16000, 1), zeros(100), noise(5000, 2), noise(5000, 3))

	require.Len(t, rec.completed, 1)
	assert.Equal(t, int64(16000), rec.completed[0].Bytes)
	assert.Equal(t, int64(2), s.Snapshot().Stats.IgnoredFrames)
	assert.Len(t, rec.started, 1)
}

func TestResidueAfterLastTrackDropped(t *testing.T) {
	s, rec := newTestSegmenter(t, Config{}, 1*time.Second)

	feed(t, s, noise(16000, 1), concat(zeros(100), noise(700, 2)))

	require.Len(t, rec.completed, 1)
	assert.Len(t, rec.started, 1)
	assert.Equal(t, Done, s.Snapshot().State)
}

func TestStopFinalizesRecording(t *testing.T) {
	s, rec := newTestSegmenter(t, Config{}, 60*time.Second, 60*time.Second)

	data := noise(5000, 1)
	feed(t, s, data)
	require.NoError(t, s.Stop())

	require.Len(t, rec.completed, 1)
	assert.True(t, rec.completed[0].Partial)
	assert.Equal(t, data, readFile(t, rec.completed[0].Path))
	assert.Equal(t, Done, s.Snapshot().State)

	require.NoError(t, s.OnFrame(audio.Frame{Data: noise(10, 2)}))
	assert.Len(t, rec.completed, 1)
}

func TestStopWhileIdle(t *testing.T) {
	s, rec := newTestSegmenter(t, Config{}, 60*time.Second)
	require.NoError(t, s.Stop())
	assert.Empty(t, rec.completed)
	assert.Equal(t, Done, s.Snapshot().State)
}

type failingSink struct {
	path      string
	discarded bool
}

func (f *failingSink) Write([]byte) (int, error) {
	return 0, apperrors.New(apperrors.IO, "disk full")
}
func (f *failingSink) Finalize() error { return nil }
func (f *failingSink) Discard() error  { f.discarded = true; return nil }
func (f *failingSink) Path() string    { return f.path }
func (f *failingSink) Written() int64  { return 0 }

func TestWriteFailureIsFatal(t *testing.T) {
	s, rec := newTestSegmenter(t, Config{}, 10*time.Second)
	fs := &failingSink{path: "x"}
	s.open = func(string) (trackSink, error) { return fs, nil }

	err := s.OnFrame(audio.Frame{Data: noise(100, 1)})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.IO))
	assert.True(t, fs.discarded)

	var appErr *apperrors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, "0", appErr.Metadata["playlist_index"])

	snap := s.Snapshot()
	assert.Equal(t, Failed, snap.State)
	assert.Empty(t, rec.completed)

	assert.Equal(t, err, s.OnFrame(audio.Frame{Data: noise(100, 2)}))
	assert.Equal(t, err, s.Stop())
}

func TestOpenFailureIsFatal(t *testing.T) {
	s, _ := newTestSegmenter(t, Config{}, 10*time.Second)
	s.open = func(string) (trackSink, error) { return nil, apperrors.New(apperrors.IO, "read-only fs") }

	err := s.OnFrame(audio.Frame{Data: noise(100, 1)})
	assert.True(t, apperrors.IsCode(err, apperrors.IO))
	assert.Equal(t, Failed, s.Snapshot().State)
}

func TestAbortDiscardsOpenSink(t *testing.T) {
	s, rec := newTestSegmenter(t, Config{}, 60*time.Second)
	feed(t, s, noise(1000, 1))

	s.Abort(apperrors.New(apperrors.Backend, "device unplugged"))

	_, err := os.Stat(s.Path(0))
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, rec.completed)
	assert.Equal(t, Failed, s.Snapshot().State)
}

func TestDuplicateTitlesGetDistinctPaths(t *testing.T) {
	dir := t.TempDir()
	pl := playlist.New("dup", []playlist.Entry{
		{Title: "Intro", Duration: time.Second},
		{Title: "intro", Duration: time.Second},
		{Title: "???", Duration: time.Second},
	})
	s, err := New(pl, testFormat, Config{OutputDir: dir, Container: ContainerWAV}, Hooks{})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "Intro.wav"), s.Path(0))
	assert.Equal(t, filepath.Join(dir, "intro (2).wav"), s.Path(1))
	assert.Equal(t, filepath.Join(dir, "track-03.wav"), s.Path(2))

	// a title that already carries a numbered suffix must not collide
	pl = playlist.New("dup", []playlist.Entry{
		{Title: "Intro", Duration: time.Second},
		{Title: "Intro", Duration: time.Second},
		{Title: "Intro (2)", Duration: time.Second},
		{Title: "INTRO (3)", Duration: time.Second},
	})
	s, err = New(pl, testFormat, Config{OutputDir: dir, Container: ContainerWAV}, Hooks{})
	require.NoError(t, err)

	seen := map[string]int{}
	for i := 0; i < pl.Len(); i++ {
		key := strings.ToLower(s.Path(i))
		if prev, ok := seen[key]; ok {
			t.Fatalf("tracks %d and %d share %s", prev, i, s.Path(i))
		}
		seen[key] = i
	}
	assert.Equal(t, filepath.Join(dir, "Intro (2).wav"), s.Path(1))
	assert.Equal(t, filepath.Join(dir, "Intro (2) (2).wav"), s.Path(2))
	assert.Equal(t, filepath.Join(dir, "INTRO (3).wav"), s.Path(3))
}

func TestSanitizeTitleReservedNames(t *testing.T) {
	assert.Equal(t, "CON_", SanitizeTitle("CON"))
	assert.Equal(t, "nul_", SanitizeTitle("nul"))
	assert.Equal(t, "Console", SanitizeTitle("Console"))
	assert.Equal(t, "Hey Jude", SanitizeTitle("Hey Jude. . "))
	assert.Equal(t, "", SanitizeTitle("..."))
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(playlist.New("empty", nil), testFormat, Config{}, Hooks{})
	assert.True(t, apperrors.IsCode(err, apperrors.InvalidArgument))

	pl := playlist.New("x", []playlist.Entry{{Title: "a", Duration: time.Second}})
	_, err = New(pl, audio.Format{}, Config{}, Hooks{})
	assert.True(t, apperrors.IsCode(err, apperrors.InvalidArgument))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "recording", Recording.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "failed", Failed.String())
}
