package segment

import (
	"bufio"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"

	"github.com/GriffinCanCode/tapedeck/internal/audio"
	apperrors "github.com/GriffinCanCode/tapedeck/internal/errors"
)

// Container selects the on-disk layout of a raw recording.
type Container int

const (
	ContainerWAV Container = iota // RIFF/WAVE PCM, sizes patched on finalize
	ContainerRaw                  // headerless PCM
)

// Ext returns the file extension for the container.
func (c Container) Ext() string {
	if c == ContainerRaw {
		return ".pcm"
	}
	return ".wav"
}

func (c Container) String() string {
	if c == ContainerRaw {
		return "raw"
	}
	return "wav"
}

// ParseContainer maps a config value to a Container.
func ParseContainer(s string) (Container, error) {
	switch s {
	case "", "wav":
		return ContainerWAV, nil
	case "raw", "pcm":
		return ContainerRaw, nil
	default:
		return 0, apperrors.Newf(apperrors.ConfigInvalid, "unknown container %q", s)
	}
}

// Sink owns the output file of a single track. It is not safe for concurrent
// use; the Segmenter is its only owner.
type Sink struct {
	path      string
	format    audio.Format
	container Container
	f         *os.File
	w         *bufio.Writer
	written   int64
	closed    bool
}

// OpenSink creates path, replacing any previous take at the same location.
func OpenSink(path string, format audio.Format, container Container) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.IO, "create directory for %s", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, apperrors.Wrapf(err, apperrors.IO, "remove previous take %s", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.IO, "create %s", path)
	}

	s := &Sink{
		path:      path,
		format:    format,
		container: container,
		f:         f,
		w:         bufio.NewWriterSize(f, sinkBufferSize),
	}
	if container == ContainerWAV {
		if _, err := s.w.Write(wavHeader(format, 0)); err != nil {
			_ = s.Discard()
			return nil, apperrors.Wrapf(err, apperrors.IO, "write header %s", path)
		}
	}
	return s, nil
}

// Path returns the output file path.
func (s *Sink) Path() string { return s.path }

// Written returns the number of PCM bytes accepted, excluding any header.
func (s *Sink) Written() int64 { return s.written }

// Write appends raw PCM. Failures are returned as-is, never retried.
func (s *Sink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, apperrors.Newf(apperrors.IO, "write to closed sink %s", s.path)
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := s.w.Write(p)
	s.written += int64(n)
	if err != nil {
		return n, apperrors.Wrapf(err, apperrors.IO, "write %s", s.path)
	}
	return n, nil
}

// Finalize flushes and closes the file, leaving it on disk. Calling it on a
// closed sink is a no-op.
func (s *Sink) Finalize() (err error) {
	if s.closed {
		return nil
	}
	s.closed = true
	defer func() {
		if cerr := s.f.Close(); cerr != nil && err == nil {
			err = apperrors.Wrapf(cerr, apperrors.IO, "close %s", s.path)
		}
	}()

	if err := s.w.Flush(); err != nil {
		return apperrors.Wrapf(err, apperrors.IO, "flush %s", s.path)
	}
	if s.container == ContainerWAV {
		if err := s.patchHeader(); err != nil {
			return err
		}
	}
	if err := s.f.Sync(); err != nil {
		return apperrors.Wrapf(err, apperrors.IO, "sync %s", s.path)
	}
	return nil
}

// Discard closes the file and deletes it. Safe to call after Finalize.
func (s *Sink) Discard() error {
	if !s.closed {
		s.closed = true
		_ = s.f.Close()
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.Wrapf(err, apperrors.IO, "remove %s", s.path)
	}
	return nil
}

func (s *Sink) patchHeader() error {
	dataSize := uint32(min(s.written, math.MaxUint32-wavHeaderSize))
	var b [4]byte

	binary.LittleEndian.PutUint32(b[:], dataSize+wavHeaderSize-8)
	if _, err := s.f.WriteAt(b[:], 4); err != nil {
		return apperrors.Wrapf(err, apperrors.IO, "patch header %s", s.path)
	}
	binary.LittleEndian.PutUint32(b[:], dataSize)
	if _, err := s.f.WriteAt(b[:], wavHeaderSize-4); err != nil {
		return apperrors.Wrapf(err, apperrors.IO, "patch header %s", s.path)
	}
	return nil
}

// wavHeader builds a canonical 44-byte PCM WAVE header.
func wavHeader(f audio.Format, dataSize uint32) []byte {
	h := make([]byte, wavHeaderSize)
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], dataSize+wavHeaderSize-8)
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:], uint16(f.Channels))
	binary.LittleEndian.PutUint32(h[24:], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(h[28:], uint32(f.BytesPerSecond()))
	binary.LittleEndian.PutUint16(h[32:], uint16(f.BlockAlign()))
	binary.LittleEndian.PutUint16(h[34:], uint16(f.BitsPerSample()))
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], dataSize)
	return h
}
