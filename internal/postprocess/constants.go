// Package postprocess turns finalized raw recordings into tagged MP3 files
// and optionally archives them.
package postprocess

import "time"

// Encoding defaults
const (
	DefaultFFmpegPath    = "ffmpeg"
	DefaultBitrate       = "320k"
	DefaultEncodeTimeout = 5 * time.Minute
	OutputExt            = ".mp3"

	// stderr kept for error messages
	stderrTailBytes = 2048

	uploadContentType = "audio/mpeg"
)
