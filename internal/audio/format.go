// Package audio captures system loopback audio as raw PCM frames.
package audio

import (
	"fmt"
	"time"
)

// Format describes the PCM layout delivered by a capture backend. It is fixed
// for the lifetime of a session.
type Format struct {
	SampleRate     int
	Channels       int
	BytesPerSample int // per channel sample, e.g. 2 for s16le
}

// BytesPerSecond returns the byte rate of interleaved PCM in this format.
func (f Format) BytesPerSecond() int64 {
	return int64(f.SampleRate) * int64(f.Channels) * int64(f.BytesPerSample)
}

// BlockAlign is the size of one interleaved sample frame.
func (f Format) BlockAlign() int { return f.Channels * f.BytesPerSample }

// BitsPerSample returns the sample depth.
func (f Format) BitsPerSample() int { return f.BytesPerSample * 8 }

// BytesFor converts a duration into a byte budget at this format's rate.
func (f Format) BytesFor(d time.Duration) int64 {
	return int64(d.Seconds() * float64(f.BytesPerSecond()))
}

// Validate checks that the format can be used for byte accounting.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.Channels <= 0 || f.BytesPerSample <= 0 {
		return fmt.Errorf("invalid audio format %s", f)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitsPerSample())
}

// Frame is one delivery from the capture backend. Its size is backend
// determined and not guaranteed constant.
type Frame struct {
	Data      []byte
	Timestamp int64
}

// Len returns the byte count of the frame.
func (f Frame) Len() int { return len(f.Data) }
