package voting

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CountdownTimer is a cancellable one-second countdown. Remaining time is
// derived from a wall-clock deadline rather than a decremented counter, so a
// long voting timer cannot drift. Tick and completion callbacks run under the
// timer's mutex: once Cancel returns, no further callback fires, and a tick
// already executing when Cancel is called finishes before Cancel returns.
//
// Callbacks must not call back into the same timer.
type CountdownTimer struct {
	clock clockwork.Clock

	mu       sync.Mutex
	gen      uint64
	active   bool
	deadline time.Time
	ticker   clockwork.Ticker
	stopCh   chan struct{}
}

// NewCountdownTimer returns an inactive timer driven by the given clock.
func NewCountdownTimer(clock clockwork.Clock) *CountdownTimer {
	return &CountdownTimer{clock: clock}
}

// Start begins a countdown of the given number of seconds. A running countdown
// is cancelled first. alive is consulted before every tick; when it reports
// false the timer silently stops without firing onComplete, which keeps a
// stale timer from firing into a cleared session. onTick and onComplete may be
// nil.
func (t *CountdownTimer) Start(seconds int, alive func() bool, onTick func(remaining int), onComplete func()) {
	t.mu.Lock()
	t.stopLocked()

	t.gen++
	gen := t.gen
	t.active = true
	t.deadline = t.clock.Now().Add(time.Duration(seconds) * time.Second)
	t.ticker = t.clock.NewTicker(time.Second)
	t.stopCh = make(chan struct{})

	ticker := t.ticker
	stopCh := t.stopCh
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.Chan():
				if !t.fire(gen, alive, onTick, onComplete) {
					return
				}
			}
		}
	}()
}

// fire runs one tick under the mutex. It returns false when the tick loop
// should exit.
func (t *CountdownTimer) fire(gen uint64, alive func() bool, onTick func(int), onComplete func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active || t.gen != gen {
		return false
	}

	if alive != nil && !alive() {
		t.stopLocked()
		return false
	}

	remaining := int(t.deadline.Sub(t.clock.Now()).Round(time.Second) / time.Second)
	if remaining <= 0 {
		t.stopLocked()
		if onComplete != nil {
			onComplete()
		}
		return false
	}

	if onTick != nil {
		onTick(remaining)
	}
	return true
}

// Cancel stops the countdown without firing onComplete. Cancelling an inactive
// timer is a no-op.
func (t *CountdownTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Restart is Cancel followed by Start: the countdown resets to the full
// duration rather than resuming.
func (t *CountdownTimer) Restart(seconds int, alive func() bool, onTick func(remaining int), onComplete func()) {
	t.Start(seconds, alive, onTick, onComplete)
}

// Active reports whether a countdown is currently running.
func (t *CountdownTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Remaining returns the seconds left, or zero when inactive.
func (t *CountdownTimer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return 0
	}
	remaining := int(t.deadline.Sub(t.clock.Now()).Round(time.Second) / time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (t *CountdownTimer) stopLocked() {
	if !t.active {
		return
	}
	t.active = false
	t.ticker.Stop()
	close(t.stopCh)
}
