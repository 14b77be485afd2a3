package sequencer

import (
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/TimerPipe/internal/models"
	"github.com/BTreeMap/TimerPipe/internal/notify"
)

// recordingListener collects lifecycle events in order.
type recordingListener struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingListener) OnTimerStarted(timer models.TimerDefinition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "started:"+timer.Name)
}

func (l *recordingListener) OnTimerTick(timer models.TimerDefinition, remaining time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "tick:"+timer.Name)
}

func (l *recordingListener) OnTimerEnded(timer models.TimerDefinition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "ended:"+timer.Name)
}

func (l *recordingListener) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *recordingListener) count(prefix string) int {
	n := 0
	for _, ev := range l.all() {
		if len(ev) >= len(prefix) && ev[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// newTestSequencer returns a sequencer with the heartbeat loop disabled so
// tests drive Tick directly.
func newTestSequencer(player notify.Player) (*Sequencer, *recordingListener) {
	s := New(WithHeartbeat(0), WithPlayer(player))
	l := &recordingListener{}
	s.AddListener(l)
	return s, l
}

func threeTimers() []models.TimerDefinition {
	return []models.TimerDefinition{
		{ID: "t1", ListID: "l1", Name: "A", Seconds: 2, Order: 0},
		{ID: "t2", ListID: "l1", Name: "B", Seconds: 1, Order: 1},
		{ID: "t3", ListID: "l1", Name: "C", Seconds: 1, Order: 2},
	}
}

func TestStartEmitsTimerStarted(t *testing.T) {
	s, l := newTestSequencer(notify.NewMockPlayer())
	s.Load("l1", false, threeTimers())

	s.Start(0)

	status := s.Status()
	if status.State != models.RunStateRunning {
		t.Errorf("Expected running state, got %s", status.State)
	}
	if status.TimerName != "A" || status.Index != 0 {
		t.Errorf("Expected timer A at index 0, got %s at %d", status.TimerName, status.Index)
	}
	if status.RemainingSeconds != 2 {
		t.Errorf("Expected 2 seconds remaining, got %v", status.RemainingSeconds)
	}
	events := l.all()
	if len(events) != 1 || events[0] != "started:A" {
		t.Errorf("Expected single started:A event, got %v", events)
	}
}

func TestStartIndexOutOfRangeStaysIdle(t *testing.T) {
	s, l := newTestSequencer(notify.NewMockPlayer())
	s.Load("l1", false, threeTimers())

	s.Start(7)

	if status := s.Status(); status.State != models.RunStateIdle {
		t.Errorf("Expected idle state, got %s", status.State)
	}
	if events := l.all(); len(events) != 0 {
		t.Errorf("Expected no events, got %v", events)
	}
}

func TestTickDecrementsAndEmits(t *testing.T) {
	s, l := newTestSequencer(notify.NewMockPlayer())
	s.Load("l1", false, threeTimers())
	s.Start(0)

	s.Tick(500 * time.Millisecond)

	if status := s.Status(); status.RemainingSeconds != 1.5 {
		t.Errorf("Expected 1.5 seconds remaining, got %v", status.RemainingSeconds)
	}
	if got := l.count("tick:A"); got != 1 {
		t.Errorf("Expected one tick event, got %d", got)
	}
}

func TestCompletionWithoutAutoplayStops(t *testing.T) {
	player := notify.NewMockPlayer()
	s, l := newTestSequencer(player)
	s.Load("l1", false, threeTimers())
	s.Start(0)

	s.Tick(2 * time.Second)

	if status := s.Status(); status.State != models.RunStateIdle {
		t.Errorf("Expected idle after completion without autoplay, got %s", status.State)
	}
	if got := l.count("ended:A"); got != 1 {
		t.Errorf("Expected one ended event, got %d", got)
	}
	if got := l.count("started:B"); got != 0 {
		t.Errorf("Expected no autoplay advance, got %d started:B events", got)
	}
	sounds := player.Played()
	if len(sounds) != 1 || sounds[0] != notify.DefaultCompletionSound {
		t.Errorf("Expected completion sound %q, got %v", notify.DefaultCompletionSound, sounds)
	}
}

func TestAutoplayChainsThroughList(t *testing.T) {
	player := notify.NewMockPlayer()
	s, l := newTestSequencer(player)
	s.Load("l1", true, threeTimers())
	s.Start(0)

	// A lasts 2s, B and C last 1s each.
	for i := 0; i < 8; i++ {
		s.Tick(500 * time.Millisecond)
	}

	if status := s.Status(); status.State != models.RunStateIdle {
		t.Errorf("Expected idle after the full sequence, got %s", status.State)
	}
	for _, name := range []string{"A", "B", "C"} {
		if got := l.count("started:" + name); got != 1 {
			t.Errorf("Expected timer %s to start once, got %d", name, got)
		}
		if got := l.count("ended:" + name); got != 1 {
			t.Errorf("Expected timer %s to end once, got %d", name, got)
		}
	}
	if sounds := player.Played(); len(sounds) != 3 {
		t.Errorf("Expected 3 completion sounds, got %d", len(sounds))
	}
}

func TestPausePreservesRemaining(t *testing.T) {
	s, _ := newTestSequencer(notify.NewMockPlayer())
	s.Load("l1", false, threeTimers())
	s.Start(0)
	s.Tick(500 * time.Millisecond)

	s.Pause()

	status := s.Status()
	if status.State != models.RunStatePaused {
		t.Errorf("Expected paused state, got %s", status.State)
	}
	if status.RemainingSeconds != 1.5 {
		t.Errorf("Expected remaining preserved at 1.5s, got %v", status.RemainingSeconds)
	}

	// Ticks while paused are ignored.
	s.Tick(time.Second)
	if status := s.Status(); status.RemainingSeconds != 1.5 {
		t.Errorf("Expected tick while paused to be a no-op, got %v remaining", status.RemainingSeconds)
	}

	s.Resume()
	s.Tick(500 * time.Millisecond)
	status = s.Status()
	if status.State != models.RunStateRunning || status.RemainingSeconds != 1 {
		t.Errorf("Expected running with 1s remaining after resume, got %s with %v", status.State, status.RemainingSeconds)
	}
}

func TestStartWhilePausedResumes(t *testing.T) {
	s, l := newTestSequencer(notify.NewMockPlayer())
	s.Load("l1", false, threeTimers())
	s.Start(0)
	s.Tick(time.Second)
	s.Pause()

	// Start on a paused sequencer must not restart the countdown.
	s.Start(0)

	status := s.Status()
	if status.State != models.RunStateRunning {
		t.Errorf("Expected running state, got %s", status.State)
	}
	if status.RemainingSeconds != 1 {
		t.Errorf("Expected remaining preserved at 1s, got %v", status.RemainingSeconds)
	}
	if got := l.count("started:A"); got != 1 {
		t.Errorf("Expected no second started event, got %d", got)
	}
}

func TestResumeFromIdleIsNoOp(t *testing.T) {
	s, _ := newTestSequencer(notify.NewMockPlayer())
	s.Load("l1", false, threeTimers())

	s.Resume()

	if status := s.Status(); status.State != models.RunStateIdle {
		t.Errorf("Expected idle state, got %s", status.State)
	}
}

func TestSkipToNextAdvances(t *testing.T) {
	s, l := newTestSequencer(notify.NewMockPlayer())
	s.Load("l1", false, threeTimers())
	s.Start(0)

	s.SkipToNext()

	status := s.Status()
	if status.TimerName != "B" || status.Index != 1 {
		t.Errorf("Expected timer B at index 1, got %s at %d", status.TimerName, status.Index)
	}
	if status.RemainingSeconds != 1 {
		t.Errorf("Expected fresh countdown of 1s, got %v", status.RemainingSeconds)
	}
	if got := l.count("started:B"); got != 1 {
		t.Errorf("Expected started:B event, got %d", got)
	}
	if got := l.count("ended:A"); got != 0 {
		t.Errorf("Expected skip not to emit an ended event, got %d", got)
	}
}

func TestSkipOnLastTimerStops(t *testing.T) {
	s, l := newTestSequencer(notify.NewMockPlayer())
	s.Load("l1", false, threeTimers())
	s.Start(2)

	s.SkipToNext()

	if status := s.Status(); status.State != models.RunStateIdle {
		t.Errorf("Expected idle after skipping the last timer, got %s", status.State)
	}
	if got := l.count("started:"); got != 1 {
		t.Errorf("Expected only the initial started event, got %d", got)
	}
}

func TestStopClearsState(t *testing.T) {
	s, _ := newTestSequencer(notify.NewMockPlayer())
	s.Load("l1", false, threeTimers())
	s.Start(0)
	s.Tick(time.Second)

	s.Stop()

	status := s.Status()
	if status.State != models.RunStateIdle {
		t.Errorf("Expected idle state, got %s", status.State)
	}
	if status.Index != -1 {
		t.Errorf("Expected index cleared to -1, got %d", status.Index)
	}
	if status.RemainingSeconds != 0 {
		t.Errorf("Expected remaining cleared, got %v", status.RemainingSeconds)
	}
}

func TestHeartbeatLoopDrivesCountdown(t *testing.T) {
	player := notify.NewMockPlayer()
	s := New(WithHeartbeat(10*time.Millisecond), WithPlayer(player))
	defer s.Shutdown()
	l := &recordingListener{}
	s.AddListener(l)
	s.Load("l1", false, []models.TimerDefinition{
		{ID: "t1", ListID: "l1", Name: "Short", Seconds: 0.05, Order: 0},
	})

	s.Start(0)

	deadline := time.After(2 * time.Second)
	for s.Status().State != models.RunStateIdle {
		select {
		case <-deadline:
			t.Fatal("Expected heartbeat loop to complete the timer")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if got := l.count("ended:Short"); got != 1 {
		t.Errorf("Expected one ended event, got %d", got)
	}
}
