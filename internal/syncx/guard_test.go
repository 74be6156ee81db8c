package syncx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardLoadStore(t *testing.T) {
	g := NewGuard(42)
	assert.Equal(t, 42, g.Load())

	g.Store(100)
	assert.Equal(t, 100, g.Load())
}

func TestGuardSwap(t *testing.T) {
	g := NewGuard("idle")

	assert.Equal(t, "idle", g.Swap("recording"))
	assert.Equal(t, "recording", g.Load())
}

func TestGuardUpdate(t *testing.T) {
	type status struct {
		index int
		bytes int64
	}
	g := NewGuard(status{})

	got := g.Update(func(s *status) {
		s.index = 2
		s.bytes = 4096
	})

	assert.Equal(t, status{index: 2, bytes: 4096}, got)
	assert.Equal(t, got, g.Load())
}

func TestGuardConcurrentSafety(t *testing.T) {
	g := NewGuard(0)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			g.Update(func(v *int) { *v++ })
		}()
		go func() {
			defer wg.Done()
			_ = g.Load()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, g.Load())
}
