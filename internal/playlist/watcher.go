package playlist

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/GriffinCanCode/tapedeck/internal/syncx"
)

// Watcher keeps the most recent valid copy of a playlist file. A running
// session holds its own *Playlist, so reloads only affect later sessions.
type Watcher struct {
	path    string
	current *syncx.Guard[*Playlist]
	fsw     *fsnotify.Watcher
	changed chan *Playlist
}

// NewWatcher loads path once and starts watching its directory. Editors often
// replace files by rename, so events are filtered by name instead of watching
// the file itself.
func NewWatcher(path string) (*Watcher, error) {
	pl, err := LoadM3U(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return &Watcher{
		path:    filepath.Clean(path),
		current: syncx.NewGuard(pl),
		fsw:     fsw,
		changed: make(chan *Playlist, 1),
	}, nil
}

// Current returns the last successfully loaded playlist.
func (w *Watcher) Current() *Playlist { return w.current.Load() }

// Changed delivers each successful reload (latest wins when nobody reads).
func (w *Watcher) Changed() <-chan *Playlist { return w.changed }

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("playlist watch error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	pl, err := LoadM3U(w.path)
	if err != nil {
		slog.Warn("playlist reload failed, keeping previous", "path", w.path, "error", err)
		return
	}
	w.current.Store(pl)
	slog.Info("playlist reloaded", "path", w.path, "entries", pl.Len(), "duration", pl.TotalDuration())

	select {
	case <-w.changed:
	default:
	}
	select {
	case w.changed <- pl:
	default:
	}
}

// Close stops watching.
func (w *Watcher) Close() error { return w.fsw.Close() }
