package segment

// Classification is the result of scanning one buffer for silence.
type Classification struct {
	FullySilent bool
	// RunStart is the index of the first byte of the first zero run longer
	// than the threshold, or -1. RunEnd is one past its last byte.
	RunStart int
	RunEnd   int
}

// HasRun reports whether a qualifying silence run was found.
func (c Classification) HasRun() bool { return c.RunStart >= 0 }

// Classify scans buf once. A byte is silent iff it is zero; an empty buffer
// counts as fully silent. A run qualifies when its length exceeds threshold.
func Classify(buf []byte, threshold int) Classification {
	c := Classification{FullySilent: true, RunStart: -1, RunEnd: -1}

	runStart := -1
	for i, b := range buf {
		if b == 0 {
			if runStart < 0 {
				runStart = i
			}
			continue
		}

		c.FullySilent = false
		if runStart >= 0 {
			if i-runStart > threshold {
				c.RunStart, c.RunEnd = runStart, i
				return c
			}
			runStart = -1
		}
	}
	if runStart >= 0 && len(buf)-runStart > threshold {
		c.RunStart, c.RunEnd = runStart, len(buf)
	}
	return c
}

// FirstSilenceRun returns the bounds of the first zero run longer than threshold.
func FirstSilenceRun(buf []byte, threshold int) (start, end int, ok bool) {
	c := Classify(buf, threshold)
	return c.RunStart, c.RunEnd, c.HasRun()
}

// IsSilent reports whether every byte of buf is zero.
func IsSilent(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
