// Package segment splits a continuous loopback capture into per-track recordings.
package segment

// Segmentation defaults
const (
	// Zero bytes in a row before a run counts as an inter-track gap. Short
	// enough to react within one buffer, long enough to skip zero crossings.
	DefaultSilentRunThreshold = 64

	// Boundary detection only runs when fewer than this many bytes of the
	// expected track length remain.
	DefaultTrackEndCheckThreshold = 100_000

	// Tracks ending with fewer bytes than this are treated as misfires.
	DefaultMinimumValidTrackBytes = 100_000

	// Write buffer per open sink
	sinkBufferSize = 64 * 1024

	wavHeaderSize = 44
)
