package segment

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/tapedeck/internal/playlist"
)

// reservedChars are rejected in file names by at least one supported OS.
const reservedChars = `<>:"/\|?*`

// reservedNames are Windows device names, invalid as a file stem.
var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// SanitizeTitle strips reserved and control characters from a track title.
// Trailing dots and spaces are dropped and device names get a "_" suffix.
func SanitizeTitle(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(reservedChars, r) {
			return -1
		}
		return r
	}, title)
	cleaned = strings.TrimRight(strings.TrimSpace(cleaned), ". ")
	if reservedNames[strings.ToLower(cleaned)] {
		cleaned += "_"
	}
	return cleaned
}

// trackPaths derives one output path per entry. Names already handed out
// (compared case-insensitively) get " (2)", " (3)" ... until free, so a later
// track can never replace an earlier finalized one.
func trackPaths(dir string, pl *playlist.Playlist, c Container) []string {
	paths := make([]string, pl.Len())
	taken := make(map[string]bool, pl.Len())
	for i, e := range pl.Entries {
		base := SanitizeTitle(e.Title)
		if base == "" {
			base = fmt.Sprintf("track-%02d", i+1)
		}
		name := base
		for n := 2; taken[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s (%d)", base, n)
		}
		taken[strings.ToLower(name)] = true
		paths[i] = filepath.Join(dir, name+c.Ext())
	}
	return paths
}
