// Package session owns one capture run at a time: capture source, segmenter
// and post-processing, plus the event history exposed to triggers.
package session

// Event buffering
const (
	DefaultEventBuffer = 64
	DefaultHistorySize = 200
)
