package supervisor

import (
	"sync"
	"time"
)

// AutoStop triggers a shutdown callback after a configured acquisition
// duration. It is a single suspend-then-check: sleep, then fire only if
// the run was not stopped manually first and the guarded subprocess is
// still alive.
type AutoStop struct {
	mu        sync.Mutex
	cancelled bool
	fired     bool

	stop     chan struct{}
	stopOnce sync.Once
}

// ArmAutoStop starts the timer. After duration, onFire runs at most once.
// A Cancel observed before the timer commits suppresses onFire, even if
// the duration has already elapsed; if the timer commits first, onFire
// still runs and Fired() reports it, so a racing Cancel must consult
// Fired() rather than assume suppression.
// A zero or negative duration disables the timer entirely and returns nil.
func ArmAutoStop(duration time.Duration, alive func() bool, onFire func()) *AutoStop {
	if duration <= 0 {
		return nil
	}

	a := &AutoStop{stop: make(chan struct{})}

	go func() {
		timer := time.NewTimer(duration)
		defer timer.Stop()

		select {
		case <-a.stop:
			return
		case <-timer.C:
		}

		a.mu.Lock()
		if a.cancelled {
			a.mu.Unlock()
			return
		}
		if !alive() {
			// Nothing left to stop; the run is already winding down.
			a.mu.Unlock()
			return
		}
		a.fired = true
		a.mu.Unlock()

		onFire()
	}()

	return a
}

// Cancel prevents onFire from running if the timer has not committed to
// firing yet. Safe to call multiple times and on a nil AutoStop
// (disabled timer).
func (a *AutoStop) Cancel() {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.cancelled = true
	a.mu.Unlock()
	a.stopOnce.Do(func() { close(a.stop) })
}

// Fired reports whether onFire was invoked.
func (a *AutoStop) Fired() bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fired
}
