package playlist

import (
	"bufio"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/GriffinCanCode/tapedeck/internal/errors"
)

// Extended M3U directives understood by the loader.
const (
	m3uHeader   = "#EXTM3U"
	m3uInfo     = "#EXTINF:"
	m3uAlbum    = "#EXTALB:"
	m3uArtist   = "#EXTART:"
	m3uPlaylist = "#PLAYLIST:"
)

// LoadM3U reads an extended M3U playlist from disk.
func LoadM3U(path string) (*Playlist, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrapf(err, apperrors.NotFound, "playlist %s", path)
		}
		return nil, apperrors.Wrapf(err, apperrors.IO, "open playlist %s", path)
	}
	defer f.Close()

	pl, err := ParseM3U(f)
	if err != nil {
		return nil, err
	}
	if pl.Name == "" {
		pl.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return pl, nil
}

// ParseM3U parses extended M3U. #EXTALB / #EXTART apply to every following
// entry until overridden. Each entry needs a positive #EXTINF duration.
func ParseM3U(r io.Reader) (*Playlist, error) {
	var (
		pl          Playlist
		album       string
		albumArtist string
		pending     *Entry
		lineNo      int
	)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		line = strings.TrimPrefix(line, "\ufeff")

		switch {
		case line == "" || line == m3uHeader:
		case strings.HasPrefix(line, m3uPlaylist):
			pl.Name = strings.TrimSpace(line[len(m3uPlaylist):])
		case strings.HasPrefix(line, m3uAlbum):
			album = strings.TrimSpace(line[len(m3uAlbum):])
		case strings.HasPrefix(line, m3uArtist):
			albumArtist = strings.TrimSpace(line[len(m3uArtist):])
		case strings.HasPrefix(line, m3uInfo):
			e, err := parseExtInf(line[len(m3uInfo):])
			if err != nil {
				return nil, err.WithMetadata("line", strconv.Itoa(lineNo))
			}
			pending = &e
		case strings.HasPrefix(line, "#"):
			// unknown directive or comment
		default:
			if pending == nil {
				return nil, apperrors.Newf(apperrors.InvalidArgument, "entry %q has no #EXTINF duration", line).
					WithMetadata("line", strconv.Itoa(lineNo))
			}
			if pending.Title == "" {
				pending.Title = strings.TrimSuffix(filepath.Base(line), filepath.Ext(line))
			}
			pending.Album = album
			pending.AlbumArtist = albumArtist
			if pending.AlbumArtist == "" {
				pending.AlbumArtist = pending.Artist
			}
			pl.Entries = append(pl.Entries, *pending)
			pending = nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.IO, "read playlist")
	}
	if len(pl.Entries) == 0 {
		return nil, apperrors.New(apperrors.InvalidArgument, "playlist has no entries")
	}
	return &pl, nil
}

// maxDurationSeconds is the largest duration time.Duration can hold.
const maxDurationSeconds = float64(math.MaxInt64) / float64(time.Second)

// parseExtInf parses "<seconds>[ attrs],<artist> - <title>".
func parseExtInf(s string) (Entry, *apperrors.AppError) {
	durPart, display, ok := strings.Cut(s, ",")
	if !ok {
		return Entry{}, apperrors.Newf(apperrors.InvalidArgument, "malformed #EXTINF %q", s)
	}
	if fields := strings.Fields(durPart); len(fields) > 0 {
		durPart = fields[0]
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(durPart), 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 {
		return Entry{}, apperrors.Newf(apperrors.InvalidArgument, "track duration %q must be positive", durPart)
	}
	if secs >= maxDurationSeconds {
		return Entry{}, apperrors.Newf(apperrors.InvalidArgument, "track duration %q is too long", durPart)
	}

	e := Entry{Duration: time.Duration(secs * float64(time.Second))}
	display = strings.TrimSpace(display)
	if artist, title, found := strings.Cut(display, " - "); found {
		e.Artist = strings.TrimSpace(artist)
		e.Title = strings.TrimSpace(title)
	} else {
		e.Title = display
	}
	return e, nil
}
