// Package animation provides frame scheduling and frame-driven value ramps.
package animation

import (
	"sync"
	"time"
)

// Frames schedules callbacks for the next animation frame, the way a browser's
// requestAnimationFrame does. A callback runs at most once.
type Frames interface {
	RequestFrame(fn func()) (cancel func())
}

type frameRequest struct {
	id uint64
	fn func()
}

type frameQueue struct {
	mu      sync.Mutex
	counter uint64
	queued  []frameRequest
}

func (q *frameQueue) request(fn func()) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.counter++
	id := q.counter
	q.queued = append(q.queued, frameRequest{id: id, fn: fn})
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		for i, r := range q.queued {
			if r.id == id {
				q.queued = append(q.queued[:i], q.queued[i+1:]...)
				return
			}
		}
	}
}

// drain takes the callbacks queued before this frame. Callbacks requested while
// the frame runs land in the next frame.
func (q *frameQueue) drain() []frameRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.queued
	q.queued = nil
	return batch
}

func (q *frameQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued)
}

// TickerFrames runs queued callbacks on a fixed-rate ticker.
type TickerFrames struct {
	queue  frameQueue
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewTickerFrames starts a frame loop at fps frames per second.
func NewTickerFrames(fps int) *TickerFrames {
	if fps <= 0 {
		fps = 60
	}
	f := &TickerFrames{stopCh: make(chan struct{})}
	f.wg.Add(1)
	go f.loop(time.Second / time.Duration(fps))
	return f
}

// RequestFrame implements Frames.
func (f *TickerFrames) RequestFrame(fn func()) func() {
	return f.queue.request(fn)
}

func (f *TickerFrames) loop(interval time.Duration) {
	defer f.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			for _, r := range f.queue.drain() {
				r.fn()
			}
		}
	}
}

// Close stops the frame loop. Pending callbacks are dropped.
func (f *TickerFrames) Close() {
	f.once.Do(func() {
		close(f.stopCh)
	})
	f.wg.Wait()
}

// ManualFrames runs queued callbacks only when Step is called.
type ManualFrames struct {
	queue frameQueue
}

// NewManualFrames creates a manually stepped frame source.
func NewManualFrames() *ManualFrames {
	return &ManualFrames{}
}

// RequestFrame implements Frames.
func (f *ManualFrames) RequestFrame(fn func()) func() {
	return f.queue.request(fn)
}

// Step runs one frame synchronously and returns the number of callbacks run.
func (f *ManualFrames) Step() int {
	batch := f.queue.drain()
	for _, r := range batch {
		r.fn()
	}
	return len(batch)
}

// StepN runs up to n frames, stopping early when nothing is queued.
func (f *ManualFrames) StepN(n int) int {
	frames := 0
	for i := 0; i < n; i++ {
		if f.Step() == 0 {
			break
		}
		frames++
	}
	return frames
}

// Pending returns the number of callbacks waiting for the next frame.
func (f *ManualFrames) Pending() int {
	return f.queue.len()
}
