package postprocess

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/tapedeck/internal/audio"
	apperrors "github.com/GriffinCanCode/tapedeck/internal/errors"
	"github.com/GriffinCanCode/tapedeck/internal/playlist"
)

// Tags are the ID3 fields written to the encoded file.
type Tags struct {
	Title       string
	Album       string
	AlbumArtist string
	Artist      string
	Track       int // 1-based
	TrackTotal  int
}

// TagsFor builds tags for the playlist entry at index.
func TagsFor(e playlist.Entry, index, total int) Tags {
	return Tags{
		Title:       e.Title,
		Album:       e.Album,
		AlbumArtist: e.AlbumArtist,
		Artist:      e.Artist,
		Track:       index + 1,
		TrackTotal:  total,
	}
}

// Job describes one encode.
type Job struct {
	Input  string
	Output string
	Format audio.Format
	Raw    bool // headerless PCM input; needs explicit format flags
	Tags   Tags
}

// Encoder compresses a raw recording.
type Encoder interface {
	Encode(ctx context.Context, job Job) error
}

// FFmpegEncoder shells out to ffmpeg with libmp3lame.
type FFmpegEncoder struct {
	Path    string
	Bitrate string
	Timeout time.Duration
}

// NewFFmpegEncoder creates an encoder, filling empty settings with defaults.
func NewFFmpegEncoder(path, bitrate string, timeout time.Duration) *FFmpegEncoder {
	if path == "" {
		path = DefaultFFmpegPath
	}
	if bitrate == "" {
		bitrate = DefaultBitrate
	}
	if timeout <= 0 {
		timeout = DefaultEncodeTimeout
	}
	return &FFmpegEncoder{Path: path, Bitrate: bitrate, Timeout: timeout}
}

// Encode runs ffmpeg for job. A missing binary is a config error; a
// non-zero exit is an encoder error and may be retried.
func (e *FFmpegEncoder) Encode(ctx context.Context, job Job) error {
	args, err := e.args(job)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Path, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		switch {
		case errors.Is(err, exec.ErrNotFound):
			return apperrors.Wrap(err, apperrors.ConfigInvalid, "ffmpeg not found").
				WithMetadata("path", e.Path)
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return apperrors.Wrap(err, apperrors.Timeout, "ffmpeg timed out").
				WithMetadata("input", job.Input)
		case ctx.Err() != nil:
			return apperrors.Wrap(ctx.Err(), apperrors.Cancelled, "encode cancelled")
		}
		return apperrors.Wrap(err, apperrors.Encoder, "ffmpeg failed").
			WithMetadata("input", job.Input).
			WithMetadata("stderr", tail(stderr.String(), stderrTailBytes))
	}
	return nil
}

func (e *FFmpegEncoder) args(job Job) ([]string, error) {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	if job.Raw {
		sampleFmt, err := rawSampleFormat(job.Format)
		if err != nil {
			return nil, err
		}
		args = append(args,
			"-f", sampleFmt,
			"-ar", strconv.Itoa(job.Format.SampleRate),
			"-ac", strconv.Itoa(job.Format.Channels),
		)
	}
	args = append(args, "-i", fileArg(job.Input),
		"-c:a", "libmp3lame",
		"-b:a", e.Bitrate,
		"-id3v2_version", "3",
	)
	args = append(args, metadataArgs(job.Tags)...)
	return append(args, fileArg(job.Output)), nil
}

// fileArg keeps ffmpeg from reading a relative path that starts with a dash
// as an option.
func fileArg(path string) string {
	if strings.HasPrefix(path, "-") {
		return "./" + path
	}
	return path
}

func rawSampleFormat(f audio.Format) (string, error) {
	switch f.BytesPerSample {
	case 2:
		return "s16le", nil
	case 3:
		return "s24le", nil
	case 4:
		return "s32le", nil
	}
	return "", apperrors.Newf(apperrors.Format, "unsupported raw sample width %d", f.BytesPerSample)
}

func metadataArgs(t Tags) []string {
	var args []string
	add := func(key, val string) {
		if val != "" {
			args = append(args, "-metadata", key+"="+val)
		}
	}
	add("title", t.Title)
	add("album", t.Album)
	add("album_artist", t.AlbumArtist)
	add("artist", t.Artist)
	if t.Track > 0 {
		track := strconv.Itoa(t.Track)
		if t.TrackTotal > 0 {
			track += "/" + strconv.Itoa(t.TrackTotal)
		}
		add("track", track)
	}
	return args
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
