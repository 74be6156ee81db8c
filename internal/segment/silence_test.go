package segment

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

// noise returns n non-zero bytes.
func noise(n int, seed uint64) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.IntN(255) + 1)
	}
	return b
}

func zeros(n int) []byte { return make([]byte, n) }

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestClassifyFullySilent(t *testing.T) {
	for _, n := range []int{0, 1, 63, 64, 65, 4096} {
		c := Classify(zeros(n), 64)
		assert.True(t, c.FullySilent, "len %d", n)
		assert.True(t, IsSilent(zeros(n)))
	}
	assert.False(t, Classify(noise(10, 1), 64).FullySilent)
	assert.False(t, IsSilent(concat(zeros(100), []byte{1})))
}

func TestClassifyRunThreshold(t *testing.T) {
	const threshold = 64
	for _, L := range []int{1, 10, threshold - 1, threshold, threshold + 1, threshold + 2, 500} {
		for _, pos := range []int{0, 1, 37, 1000} {
			buf := concat(noise(pos, uint64(L)), zeros(L), noise(50, uint64(pos)))
			start, end, ok := FirstSilenceRun(buf, threshold)

			if L <= threshold {
				assert.False(t, ok, "L=%d pos=%d", L, pos)
				assert.Equal(t, -1, start)
				continue
			}
			assert.True(t, ok, "L=%d pos=%d", L, pos)
			assert.Equal(t, pos, start, "L=%d", L)
			assert.Equal(t, pos+L, end, "L=%d", L)
		}
	}
}

func TestClassifyFirstQualifyingRunWins(t *testing.T) {
	buf := concat(noise(10, 1), zeros(30), noise(10, 2), zeros(100), noise(10, 3), zeros(200))
	c := Classify(buf, 64)

	assert.False(t, c.FullySilent)
	assert.Equal(t, 50, c.RunStart)
	assert.Equal(t, 150, c.RunEnd)
}

func TestClassifyTrailingRun(t *testing.T) {
	buf := concat(noise(20, 4), zeros(65))
	start, end, ok := FirstSilenceRun(buf, 64)

	assert.True(t, ok)
	assert.Equal(t, 20, start)
	assert.Equal(t, len(buf), end)
}

func TestClassifyDeterministic(t *testing.T) {
	buf := concat(noise(333, 9), zeros(70), noise(12, 10))
	assert.Equal(t, Classify(buf, 64), Classify(buf, 64))
}
