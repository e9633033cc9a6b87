package resolvd

import (
	"sync"
	"time"
)

// idleTimerState is the three-state machine named in spec.md §5.
type idleTimerState int

const (
	idleArmed idleTimerState = iota
	idlePaused
	idleCompleted
)

// IdleTimer completes after no activity for a configured duration. It backs
// connection-idle reaping for pooled TCP connections in the transport
// dispatcher (spec.md §5). It is pausable, resettable, and one-shot: once
// completed it never rearms, and every mutating method after completion is
// a no-op returning false. All mutation is serialized by a single mutex, in
// the teacher's mutex-guarded-struct style (solvere/cache.go's cacheEntry).
type IdleTimer struct {
	mu       sync.Mutex
	state    idleTimerState
	timeout  time.Duration
	timer    *time.Timer
	onExpire func()
}

// NewIdleTimer creates an armed IdleTimer that calls onExpire after timeout
// of inactivity.
func NewIdleTimer(timeout time.Duration, onExpire func()) *IdleTimer {
	it := &IdleTimer{timeout: timeout, onExpire: onExpire}
	it.timer = time.AfterFunc(timeout, it.fire)
	return it
}

func (it *IdleTimer) fire() {
	it.mu.Lock()
	if it.state != idleArmed {
		it.mu.Unlock()
		return
	}
	it.state = idleCompleted
	cb := it.onExpire
	it.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Reset restarts the countdown from timeout, e.g. on fresh activity. Returns
// false if the timer has already completed or is paused.
func (it *IdleTimer) Reset() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.state != idleArmed {
		return false
	}
	it.timer.Reset(it.timeout)
	return true
}

// Pause stops the countdown without completing it. Returns false if already
// completed.
func (it *IdleTimer) Pause() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.state == idleCompleted {
		return false
	}
	it.timer.Stop()
	it.state = idlePaused
	return true
}

// Start resumes a paused timer from the beginning of its timeout window.
// Returns false if already completed.
func (it *IdleTimer) Start() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.state == idleCompleted {
		return false
	}
	it.state = idleArmed
	it.timer.Reset(it.timeout)
	return true
}

// SetTimeout changes the duration used by future Reset/Start calls. It does
// not itself restart a running countdown. Returns false if already
// completed, consistent with every other mutator on a completed timer.
func (it *IdleTimer) SetTimeout(d time.Duration) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.state == idleCompleted {
		return false
	}
	it.timeout = d
	return true
}

// Stop permanently disarms the timer without running onExpire. It is the
// caller's responsibility to call this when the resource being reaped is
// closed through some other path.
func (it *IdleTimer) Stop() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.state == idleCompleted {
		return false
	}
	it.timer.Stop()
	it.state = idleCompleted
	return true
}
