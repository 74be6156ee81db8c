package audio

import "context"

// Source is a capture backend. Frames are delivered in arrival order on the
// channel returned by Frames until Stop is called, after which it is closed.
type Source interface {
	Format() Format
	Start(ctx context.Context) error
	Frames() <-chan Frame
	Stop() error
}
