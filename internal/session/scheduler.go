package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler issues cancelable one-shot tasks on top of a clockwork clock.
// The protocol's delayed steps (convergence window, posting delay, display
// grace) all run through it so cancellation is an explicit operation rather
// than a fire-and-forget callback that must check its own liveness.
type Scheduler struct {
	clock clockwork.Clock
}

func NewScheduler(clock clockwork.Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Task is a pending one-shot callback.
type Task struct {
	mu       sync.Mutex
	timer    clockwork.Timer
	canceled bool
}

// After schedules fn to run once after d. The returned Task cancels it.
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	t := &Task{}
	t.timer = s.clock.AfterFunc(d, func() {
		t.mu.Lock()
		canceled := t.canceled
		t.mu.Unlock()
		if canceled {
			return
		}
		fn()
	})
	return t
}

// Cancel stops the task. Canceling an already-fired or already-canceled
// task is a no-op.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.canceled = true
	t.mu.Unlock()
	t.timer.Stop()
}
