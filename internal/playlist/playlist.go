// Package playlist holds the ordered track list a capture session is split against.
package playlist

import "time"

// Entry describes one expected track. Duration is the authored length and is
// only advisory: captured audio drifts from it.
type Entry struct {
	Title       string
	Album       string
	AlbumArtist string
	Artist      string
	Duration    time.Duration
}

// Playlist is an ordered, immutable sequence of entries.
type Playlist struct {
	Name    string
	Entries []Entry
}

// New copies entries into a Playlist so later mutation of the slice by the
// caller cannot affect a running session.
func New(name string, entries []Entry) *Playlist {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Playlist{Name: name, Entries: cp}
}

// Len returns the number of entries.
func (p *Playlist) Len() int { return len(p.Entries) }

// At returns the entry at index i.
func (p *Playlist) At(i int) Entry { return p.Entries[i] }

// TotalDuration returns the sum of all expected durations.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, e := range p.Entries {
		total += e.Duration
	}
	return total
}
