package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced clock. Pending timers fire in deadline order when
// Advance moves time past them. AfterFunc callbacks run synchronously inside Advance.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	counter uint64
	pending []*fakeTimer
}

type fakeTimer struct {
	clock *Fake
	seq   uint64
	when  time.Time
	fn    func()
	ch    chan time.Time
	done  bool
}

// NewFake creates a fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After registers a channel timer.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	f.schedule(d, nil, ch)
	return ch
}

// AfterFunc registers a callback timer.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	return f.schedule(d, fn, nil)
}

func (f *Fake) schedule(d time.Duration, fn func(), ch chan time.Time) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.counter++
	t := &fakeTimer{clock: f, seq: f.counter, when: f.now.Add(d), fn: fn, ch: ch}
	f.pending = append(f.pending, t)
	sort.SliceStable(f.pending, func(i, j int) bool {
		if f.pending[i].when.Equal(f.pending[j].when) {
			return f.pending[i].seq < f.pending[j].seq
		}
		return f.pending[i].when.Before(f.pending[j].when)
	})
	return t
}

// Pending returns the number of timers that have not fired or been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Advance moves time forward by d and fires every timer that became due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		if len(f.pending) == 0 || f.pending[0].when.After(target) {
			f.now = target
			f.mu.Unlock()
			return
		}
		t := f.pending[0]
		f.pending = f.pending[1:]
		t.done = true
		f.now = t.when
		f.mu.Unlock()

		if t.ch != nil {
			t.ch <- t.when
		}
		if t.fn != nil {
			t.fn()
		}
	}
}

// BlockUntil waits until at least n timers are pending. Tests use it to
// synchronize with goroutines that are about to sleep on the clock.
func (f *Fake) BlockUntil(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f.Pending() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func (t *fakeTimer) Stop() bool {
	f := t.clock
	f.mu.Lock()
	defer f.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true
	for i, p := range f.pending {
		if p == t {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			break
		}
	}
	return true
}
