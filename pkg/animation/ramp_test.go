package animation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name        string
		current     float64
		target      float64
		step        float64
		want        float64
		wantReached bool
	}{
		{name: "Up", current: 0, target: 0.03, step: 0.005, want: 0.005},
		{name: "Up clamps", current: 0.028, target: 0.03, step: 0.005, want: 0.03, wantReached: true},
		{name: "Down", current: 0.03, target: 0, step: 0.005, want: 0.025},
		{name: "Down clamps", current: 0.002, target: 0, step: 0.005, want: 0, wantReached: true},
		{name: "Negative step treated as magnitude", current: 0, target: 1, step: -0.5, want: 0.5},
		{name: "Zero step jumps", current: 0, target: 1, step: 0, want: 1, wantReached: true},
		{name: "Already there", current: 1, target: 1, step: 0.1, want: 1, wantReached: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reached := Next(tt.current, tt.target, tt.step)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.Equal(t, tt.wantReached, reached)
		})
	}
}

func TestRamp_MonotonicPerFrame(t *testing.T) {
	frames := NewManualFrames()
	var applied []float64
	var result RampResult
	calls := 0

	r := StartRamp(frames, RampSpec{From: 0, To: 0.03, Step: 0.005}, func(v float64) bool {
		applied = append(applied, v)
		return true
	}, func(res RampResult) {
		result = res
		calls++
	})

	// First step is applied synchronously.
	require.Len(t, applied, 1)

	frames.StepN(100)

	require.Len(t, applied, 6)
	for i := 1; i < len(applied); i++ {
		assert.Greater(t, applied[i], applied[i-1], "ramp must be strictly increasing")
	}
	assert.Equal(t, 0.03, applied[len(applied)-1])
	assert.Equal(t, RampCompleted, result)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, frames.Pending())

	select {
	case <-r.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestRamp_Cancel(t *testing.T) {
	frames := NewManualFrames()
	count := 0
	r := StartRamp(frames, RampSpec{From: 0, To: 1, Step: 0.1}, func(v float64) bool {
		count++
		return true
	}, nil)

	frames.Step()
	frames.Step()
	r.Cancel()
	r.Cancel()
	frames.StepN(20)

	assert.Equal(t, 3, count)
	res, finished := r.Result()
	assert.True(t, finished)
	assert.Equal(t, RampCanceled, res)
	assert.InDelta(t, 0.3, r.Value(), 1e-9)
}

func TestRamp_AbortWhenApplyRefuses(t *testing.T) {
	frames := NewManualFrames()
	layerPresent := true
	r := StartRamp(frames, RampSpec{From: 0.03, To: 0, Step: 0.005}, func(v float64) bool {
		return layerPresent
	}, nil)

	frames.Step()
	layerPresent = false
	frames.Step()

	res, finished := r.Result()
	require.True(t, finished)
	assert.Equal(t, RampAborted, res)
	assert.Equal(t, 0, frames.Pending())
}

func TestTickerFrames_RunsCallbacks(t *testing.T) {
	f := NewTickerFrames(200)
	defer f.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	f.RequestFrame(wg.Done)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("frame callback never ran")
	}
}

func TestManualFrames_CancelRequest(t *testing.T) {
	f := NewManualFrames()
	ran := false
	cancel := f.RequestFrame(func() { ran = true })
	cancel()
	assert.Equal(t, 0, f.Step())
	assert.False(t, ran)
}
