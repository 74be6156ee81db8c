package audio

// Capture defaults
const (
	// Samples per channel per read, ~23ms at 44100Hz
	DefaultFramesPerBuffer = 1024

	// Frames buffered between the device reader and the consumer
	DefaultQueueFrames = 256

	// s16le
	SampleBytes = 2
)

// DefaultLoopbackTokens are case-insensitive substrings that identify system
// output monitor devices.
var DefaultLoopbackTokens = []string{"blackhole", "loopback", "monitor", "stereo mix", "soundflower", "vb-cable"}
