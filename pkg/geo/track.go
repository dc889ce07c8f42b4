package geo

import "sync"

// HeadingBuffer keeps a short window of walking fixes and derives a course over ground
// for sensors that report no heading. Fixes closer than minStepM to the previous
// sample are treated as GPS jitter and not recorded.
type HeadingBuffer struct {
	mu         sync.RWMutex
	samples    []Point
	windowSize int
	minStepM   float64
}

// NewHeadingBuffer creates a new buffer with the specified sample window size.
func NewHeadingBuffer(windowSize int, minStepM float64) *HeadingBuffer {
	if windowSize < 2 {
		windowSize = 2
	}
	return &HeadingBuffer{
		windowSize: windowSize,
		minStepM:   minStepM,
	}
}

// Push records p and returns the course from the oldest to the newest sample.
// With fewer than 2 samples it returns fallback.
func (b *HeadingBuffer) Push(p Point, fallback float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.samples); n > 0 && Distance(b.samples[n-1], p) < b.minStepM {
		return b.courseLocked(fallback)
	}

	b.samples = append(b.samples, p)
	if len(b.samples) > b.windowSize {
		b.samples = b.samples[1:]
	}
	return b.courseLocked(fallback)
}

// Course returns the current course without recording a sample.
func (b *HeadingBuffer) Course(fallback float64) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.courseLocked(fallback)
}

func (b *HeadingBuffer) courseLocked(fallback float64) float64 {
	if len(b.samples) < 2 {
		return fallback
	}
	return Bearing(b.samples[0], b.samples[len(b.samples)-1])
}

// Reset clears the buffer history.
func (b *HeadingBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = nil
}
