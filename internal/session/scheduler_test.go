package session

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestSchedulerAfterFires(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sched := NewScheduler(fc)

	fired := make(chan struct{})
	sched.After(time.Second, func() { close(fired) })

	fc.BlockUntil(1)
	fc.Advance(time.Second)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not fire after advancing past its deadline")
	}
}

func TestSchedulerCancelPreventsFire(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sched := NewScheduler(fc)

	fired := make(chan struct{}, 1)
	task := sched.After(time.Second, func() { fired <- struct{}{} })

	fc.BlockUntil(1)
	task.Cancel()
	fc.Advance(2 * time.Second)

	select {
	case <-fired:
		t.Fatal("canceled task fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSchedulerCancelAfterFireIsNoOp(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sched := NewScheduler(fc)

	fired := make(chan struct{})
	task := sched.After(time.Second, func() { close(fired) })

	fc.BlockUntil(1)
	fc.Advance(time.Second)
	<-fired
	task.Cancel()

	var nilTask *Task
	nilTask.Cancel() // nil task is also a no-op
}
