package animation

import (
	"math"
	"sync"
)

// RampSpec describes a monotonic value ramp that advances a fixed step per frame.
// Duration therefore depends on the frame rate.
type RampSpec struct {
	From float64
	To   float64
	Step float64
}

// Next advances current one step towards target and reports whether target was reached.
// The result never overshoots target.
func Next(current, target, step float64) (float64, bool) {
	step = math.Abs(step)
	if step == 0 || current == target {
		return target, true
	}
	if current < target {
		next := current + step
		if next >= target {
			return target, true
		}
		return next, false
	}
	next := current - step
	if next <= target {
		return target, true
	}
	return next, false
}

// RampResult is the outcome of a finished ramp.
type RampResult int

const (
	// RampCompleted means the ramp reached its target.
	RampCompleted RampResult = iota
	// RampCanceled means Cancel was called before the target was reached.
	RampCanceled
	// RampAborted means the apply func refused a value, e.g. the layer was removed.
	RampAborted
)

// ApplyFunc writes one ramp value. Returning false aborts the ramp.
type ApplyFunc func(v float64) bool

// Ramp is a cancelable, frame-driven animation task.
type Ramp struct {
	frames Frames
	spec   RampSpec
	apply  ApplyFunc

	mu          sync.Mutex
	value       float64
	cancelFrame func()
	result      RampResult
	finished    bool
	done        chan struct{}
	onDone      func(RampResult)
}

// StartRamp applies the first step immediately and schedules the rest on frames.
// onDone (optional) runs exactly once with the outcome.
func StartRamp(frames Frames, spec RampSpec, apply ApplyFunc, onDone func(RampResult)) *Ramp {
	r := &Ramp{
		frames: frames,
		spec:   spec,
		apply:  apply,
		value:  spec.From,
		done:   make(chan struct{}),
		onDone: onDone,
	}
	r.tick()
	return r
}

func (r *Ramp) tick() {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	next, reached := Next(r.value, r.spec.To, r.spec.Step)
	r.mu.Unlock()

	if !r.apply(next) {
		r.finish(RampAborted)
		return
	}

	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.value = next
	if !reached {
		r.cancelFrame = r.frames.RequestFrame(r.tick)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.finish(RampCompleted)
}

func (r *Ramp) finish(res RampResult) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true
	r.result = res
	if r.cancelFrame != nil {
		r.cancelFrame()
		r.cancelFrame = nil
	}
	cb := r.onDone
	close(r.done)
	r.mu.Unlock()

	if cb != nil {
		cb(res)
	}
}

// Cancel stops the ramp at its current value. Safe to call repeatedly.
func (r *Ramp) Cancel() {
	r.finish(RampCanceled)
}

// Value returns the last applied value.
func (r *Ramp) Value() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

// Result returns the outcome and whether the ramp has finished.
func (r *Ramp) Result() (RampResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.finished
}

// Done is closed when the ramp finishes for any reason.
func (r *Ramp) Done() <-chan struct{} {
	return r.done
}
