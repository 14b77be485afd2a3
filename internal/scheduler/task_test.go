package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleOnceFires(t *testing.T) {
	s := NewTaskScheduler()
	defer s.StopAll()

	fired := make(chan struct{})
	s.ScheduleOnce(20*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Expected one-shot task to fire")
	}

	// One-shots remove themselves after firing.
	time.Sleep(10 * time.Millisecond)
	if got := s.ActiveCount(); got != 0 {
		t.Errorf("Expected 0 active tasks after one-shot fired, got %d", got)
	}
}

func TestScheduleRepeatingFiresRepeatedly(t *testing.T) {
	s := NewTaskScheduler()
	defer s.StopAll()

	var count int32
	s.ScheduleRepeating(25*time.Millisecond, func() { atomic.AddInt32(&count, 1) })

	time.Sleep(140 * time.Millisecond)
	if got := atomic.LoadInt32(&count); got < 3 {
		t.Errorf("Expected at least 3 firings, got %d", got)
	}
	if got := s.ActiveCount(); got != 1 {
		t.Errorf("Expected repeating task to stay active, got %d", got)
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	s := NewTaskScheduler()
	defer s.StopAll()

	var fired int32
	id := s.ScheduleOnce(40*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	s.Cancel(id)

	time.Sleep(80 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("Expected canceled task not to fire")
	}
	if got := s.ActiveCount(); got != 0 {
		t.Errorf("Expected 0 active tasks after cancel, got %d", got)
	}
}

func TestCancelUnknownHandleIsNoOp(t *testing.T) {
	s := NewTaskScheduler()
	defer s.StopAll()
	s.Cancel("task_999")
}

// A repeating task paused partway through its period must fire the remainder
// of the period after resume, not a full period.
func TestPauseResumePreservesPhase(t *testing.T) {
	s := NewTaskScheduler()
	defer s.StopAll()

	fired := make(chan time.Time, 1)
	s.ScheduleRepeating(500*time.Millisecond, func() {
		select {
		case fired <- time.Now():
		default:
		}
	})

	// Pause 200ms into the 500ms period.
	time.Sleep(200 * time.Millisecond)
	s.PauseAll()

	// While paused, nothing fires.
	time.Sleep(600 * time.Millisecond)
	select {
	case <-fired:
		t.Fatal("Expected no firing while paused")
	default:
	}

	resumedAt := time.Now()
	s.ResumeAll()

	select {
	case firedAt := <-fired:
		wait := firedAt.Sub(resumedAt)
		// Roughly 300ms of the period remained at pause time.
		if wait < 200*time.Millisecond || wait > 450*time.Millisecond {
			t.Errorf("Expected first fire ~300ms after resume, got %v", wait)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected repeating task to fire after resume")
	}
}

func TestPauseResumeOneShotSubtractsServedDelay(t *testing.T) {
	s := NewTaskScheduler()
	defer s.StopAll()

	fired := make(chan time.Time, 1)
	s.ScheduleOnce(300*time.Millisecond, func() { fired <- time.Now() })

	time.Sleep(100 * time.Millisecond)
	s.PauseAll()
	time.Sleep(200 * time.Millisecond)

	resumedAt := time.Now()
	s.ResumeAll()

	select {
	case firedAt := <-fired:
		wait := firedAt.Sub(resumedAt)
		// Roughly 200ms of the delay remained at pause time.
		if wait < 120*time.Millisecond || wait > 350*time.Millisecond {
			t.Errorf("Expected fire ~200ms after resume, got %v", wait)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected one-shot to fire after resume")
	}
}

func TestScheduleWhilePausedDefersArming(t *testing.T) {
	s := NewTaskScheduler()
	defer s.StopAll()

	s.PauseAll()

	var fired int32
	s.ScheduleOnce(20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	time.Sleep(80 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("Expected task scheduled while paused not to fire")
	}

	s.ResumeAll()
	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 1 {
		t.Error("Expected task to fire after resume")
	}
}

func TestStopAllDiscardsTasks(t *testing.T) {
	s := NewTaskScheduler()

	var fired int32
	s.ScheduleRepeating(20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	s.ScheduleOnce(20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	s.StopAll()

	time.Sleep(80 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("Expected no firings after StopAll")
	}
	if got := s.ActiveCount(); got != 0 {
		t.Errorf("Expected 0 active tasks after StopAll, got %d", got)
	}

	// StopAll also clears the paused flag.
	s.PauseAll()
	s.StopAll()
	done := make(chan struct{})
	s.ScheduleOnce(10*time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Expected scheduling after StopAll to arm normally")
	}
}
