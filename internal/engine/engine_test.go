package engine

import (
	"testing"
	"time"

	"github.com/BTreeMap/TimerPipe/internal/models"
	"github.com/BTreeMap/TimerPipe/internal/notify"
	"github.com/BTreeMap/TimerPipe/internal/scheduler"
	"github.com/BTreeMap/TimerPipe/internal/sequencer"
	"github.com/BTreeMap/TimerPipe/internal/store"
)

// testRig wires a sequencer, engine, and in-memory store the way the server
// does, with the heartbeat loop disabled so tests drive ticks directly.
type testRig struct {
	st       *store.InMemoryStore
	seq      *sequencer.Sequencer
	eng      *Engine
	player   *notify.MockPlayer
	notifier *notify.MockNotifier
}

func newTestRig(t *testing.T, timers []models.TimerDefinition, counters []models.Counter, automations []models.Automation, autoplay bool) *testRig {
	t.Helper()

	st := store.NewInMemoryStore()
	list := models.TimerList{ID: "l1", Name: "Test list", Autoplay: autoplay, CreatedAt: time.Now()}
	if err := st.CreateTimerList(list); err != nil {
		t.Fatalf("Failed to create list: %v", err)
	}
	for _, timer := range timers {
		if err := st.CreateTimer(timer); err != nil {
			t.Fatalf("Failed to create timer: %v", err)
		}
	}
	for _, counter := range counters {
		if err := st.CreateCounter(counter); err != nil {
			t.Fatalf("Failed to create counter: %v", err)
		}
	}
	for _, automation := range automations {
		if err := st.CreateAutomation(automation); err != nil {
			t.Fatalf("Failed to create automation: %v", err)
		}
	}

	player := notify.NewMockPlayer()
	notifier := notify.NewMockNotifier()
	tasks := scheduler.NewTaskScheduler()
	eng := New(st, tasks, WithPlayer(player), WithNotifier(notifier))
	seq := sequencer.New(sequencer.WithHeartbeat(0), sequencer.WithPlayer(player))
	seq.AddListener(eng)
	eng.SetControl(seq)

	if err := eng.Bind("l1"); err != nil {
		t.Fatalf("Failed to bind engine: %v", err)
	}
	seq.Load("l1", autoplay, timers)

	t.Cleanup(func() {
		seq.Shutdown()
		eng.OnStopped()
	})
	return &testRig{st: st, seq: seq, eng: eng, player: player, notifier: notifier}
}

func countSound(sounds []string, id string) int {
	n := 0
	for _, s := range sounds {
		if s == id {
			n++
		}
	}
	return n
}

func workRestTimers() []models.TimerDefinition {
	return []models.TimerDefinition{
		{ID: "t1", ListID: "l1", Name: "Work", Seconds: 10, Order: 0},
		{ID: "t2", ListID: "l1", Name: "Rest", Seconds: 5, Order: 1},
	}
}

func soundAutomation(id, name string, trigger models.Trigger) models.Automation {
	return models.Automation{
		ID:       id,
		ListID:   "l1",
		Name:     name,
		Enabled:  true,
		Triggers: []models.Trigger{trigger},
		Actions:  []models.Action{models.PlaySoundAction{SoundID: "beep_" + id}},
	}
}

func TestTimerStartTriggerMatchesByName(t *testing.T) {
	rig := newTestRig(t, workRestTimers(), nil, []models.Automation{
		soundAutomation("a1", "On rest start", models.TimerStartTrigger{TimerName: "Rest"}),
	}, false)

	rig.seq.Start(0) // Work
	if got := countSound(rig.player.Played(), "beep_a1"); got != 0 {
		t.Errorf("Expected no firing for non-matching timer, got %d", got)
	}

	rig.seq.Stop()
	rig.eng.OnStopped()
	rig.seq.Start(1) // Rest
	if got := countSound(rig.player.Played(), "beep_a1"); got != 1 {
		t.Errorf("Expected one firing for matching timer, got %d", got)
	}
}

func TestAnyTimerTriggersFireForEveryTimer(t *testing.T) {
	rig := newTestRig(t, workRestTimers(), nil, []models.Automation{
		soundAutomation("a1", "On any start", models.AnyTimerStartTrigger{}),
		soundAutomation("a2", "On any end", models.AnyTimerEndTrigger{}),
	}, true)

	rig.seq.Start(0)
	rig.seq.Tick(10 * time.Second) // Work ends, Rest autoplays
	rig.seq.Tick(5 * time.Second)  // Rest ends

	sounds := rig.player.Played()
	if got := countSound(sounds, "beep_a1"); got != 2 {
		t.Errorf("Expected any-start to fire twice, got %d", got)
	}
	if got := countSound(sounds, "beep_a2"); got != 2 {
		t.Errorf("Expected any-end to fire twice, got %d", got)
	}
}

func TestDisabledAutomationNeverFires(t *testing.T) {
	automation := soundAutomation("a1", "Disabled", models.AnyTimerStartTrigger{})
	automation.Enabled = false
	rig := newTestRig(t, workRestTimers(), nil, []models.Automation{automation}, false)

	rig.seq.Start(0)
	if got := countSound(rig.player.Played(), "beep_a1"); got != 0 {
		t.Errorf("Expected disabled automation not to fire, got %d", got)
	}
}

// A time-remaining trigger fires once when remaining crosses the threshold
// and must not fire again on further ticks below it.
func TestTimeRemainingTriggerFiresOncePerDescent(t *testing.T) {
	rig := newTestRig(t, workRestTimers(), nil, []models.Automation{
		soundAutomation("a1", "Final countdown", models.TimeRemainingTrigger{TimerName: "Work", Seconds: 5}),
	}, false)

	rig.seq.Start(0)
	rig.seq.Tick(4 * time.Second) // remaining 6s, above threshold
	if got := countSound(rig.player.Played(), "beep_a1"); got != 0 {
		t.Errorf("Expected no firing above threshold, got %d", got)
	}

	rig.seq.Tick(2 * time.Second) // remaining 4s, crossed
	rig.seq.Tick(time.Second)     // remaining 3s, still below
	rig.seq.Tick(time.Second)     // remaining 2s
	if got := countSound(rig.player.Played(), "beep_a1"); got != 1 {
		t.Errorf("Expected exactly one firing per descent, got %d", got)
	}
}

// Restarting the timer resets the threshold edge, so the trigger fires again
// on the next descent.
func TestTimeRemainingTriggerRearmsOnNextStart(t *testing.T) {
	rig := newTestRig(t, workRestTimers(), nil, []models.Automation{
		soundAutomation("a1", "Final countdown", models.TimeRemainingTrigger{TimerName: "Work", Seconds: 5}),
	}, false)

	rig.seq.Start(0)
	rig.seq.Tick(6 * time.Second) // crossed
	rig.seq.Stop()
	rig.eng.OnStopped()

	rig.seq.Start(0)
	rig.seq.Tick(6 * time.Second) // crossed again
	if got := countSound(rig.player.Played(), "beep_a1"); got != 2 {
		t.Errorf("Expected one firing per run, got %d", got)
	}
}

func TestCounterValueTriggerFiresOnBecomingTarget(t *testing.T) {
	counters := []models.Counter{
		{ID: "c1", ListID: "l1", Name: "Reps", Value: 0, InitialValue: 0},
	}
	rig := newTestRig(t, workRestTimers(), counters, []models.Automation{
		soundAutomation("a1", "Three reps", models.CounterValueTrigger{CounterName: "Reps", Target: 3}),
	}, false)

	for i := 0; i < 3; i++ {
		if _, err := rig.eng.IncrementCounter("c1"); err != nil {
			t.Fatalf("Failed to increment counter: %v", err)
		}
	}
	if got := countSound(rig.player.Played(), "beep_a1"); got != 1 {
		t.Errorf("Expected firing when counter becomes 3, got %d", got)
	}

	// Moving away and returning to the target fires again.
	if _, err := rig.eng.IncrementCounter("c1"); err != nil {
		t.Fatalf("Failed to increment counter: %v", err)
	}
	if _, err := rig.eng.DecrementCounter("c1"); err != nil {
		t.Fatalf("Failed to decrement counter: %v", err)
	}
	if got := countSound(rig.player.Played(), "beep_a1"); got != 2 {
		t.Errorf("Expected firing on each arrival at target, got %d", got)
	}
}

func TestCounterAtBoundDoesNotRefire(t *testing.T) {
	max := 3
	counters := []models.Counter{
		{ID: "c1", ListID: "l1", Name: "Reps", Value: 2, InitialValue: 0, MaxValue: &max},
	}
	rig := newTestRig(t, workRestTimers(), counters, []models.Automation{
		soundAutomation("a1", "Maxed", models.CounterValueTrigger{CounterName: "Reps", Target: 3}),
	}, false)

	rig.eng.IncrementCounter("c1") // 2 -> 3, fires
	rig.eng.IncrementCounter("c1") // clamped at 3, no change, no fire
	if got := countSound(rig.player.Played(), "beep_a1"); got != 1 {
		t.Errorf("Expected clamped increment not to refire, got %d", got)
	}
}

// A modify-counter action applies its delta to every counter sharing the
// referenced name.
func TestModifyCounterActionFansOut(t *testing.T) {
	counters := []models.Counter{
		{ID: "c1", ListID: "l1", Name: "Score", Value: 0, InitialValue: 0, Order: 0},
		{ID: "c2", ListID: "l1", Name: "Score", Value: 10, InitialValue: 10, Order: 1},
		{ID: "c3", ListID: "l1", Name: "Other", Value: 0, InitialValue: 0, Order: 2},
	}
	automation := models.Automation{
		ID:       "a1",
		ListID:   "l1",
		Name:     "Bump scores",
		Enabled:  true,
		Triggers: []models.Trigger{models.AnyTimerStartTrigger{}},
		Actions:  []models.Action{models.ModifyCounterAction{CounterName: "Score", Delta: 2}},
	}
	rig := newTestRig(t, workRestTimers(), counters, []models.Automation{automation}, false)

	rig.seq.Start(0)

	c1, _ := rig.st.GetCounter("c1")
	c2, _ := rig.st.GetCounter("c2")
	c3, _ := rig.st.GetCounter("c3")
	if c1.Value != 2 || c2.Value != 12 {
		t.Errorf("Expected both Score counters bumped, got %d and %d", c1.Value, c2.Value)
	}
	if c3.Value != 0 {
		t.Errorf("Expected unrelated counter untouched, got %d", c3.Value)
	}
}

// References are by name; a name that matches nothing is a silent no-op.
func TestUnresolvedCounterReferenceIsNoOp(t *testing.T) {
	automation := models.Automation{
		ID:       "a1",
		ListID:   "l1",
		Name:     "Ghost counter",
		Enabled:  true,
		Triggers: []models.Trigger{models.AnyTimerStartTrigger{}},
		Actions: []models.Action{
			models.ModifyCounterAction{CounterName: "Missing", Delta: 1},
			models.PlaySoundAction{SoundID: "after"},
		},
	}
	rig := newTestRig(t, workRestTimers(), nil, []models.Automation{automation}, false)

	rig.seq.Start(0)

	// The action after the unresolved reference still runs.
	if got := countSound(rig.player.Played(), "after"); got != 1 {
		t.Errorf("Expected subsequent action to run, got %d", got)
	}
}

func TestShowNotificationAction(t *testing.T) {
	automation := models.Automation{
		ID:       "a1",
		ListID:   "l1",
		Name:     "Greet",
		Enabled:  true,
		Triggers: []models.Trigger{models.TimerStartTrigger{TimerName: "Work"}},
		Actions:  []models.Action{models.ShowNotificationAction{Message: "Focus time"}},
	}
	rig := newTestRig(t, workRestTimers(), nil, []models.Automation{automation}, false)

	rig.seq.Start(0)

	shown := rig.notifier.Shown()
	if len(shown) != 1 || shown[0] != "Focus time" {
		t.Errorf("Expected notification 'Focus time', got %v", shown)
	}
}

func TestPauseActiveTimerAction(t *testing.T) {
	automation := models.Automation{
		ID:       "a1",
		ListID:   "l1",
		Name:     "Pause at one second",
		Enabled:  true,
		Triggers: []models.Trigger{models.TimeRemainingTrigger{TimerName: "Work", Seconds: 9}},
		Actions:  []models.Action{models.PauseActiveTimerAction{}},
	}
	rig := newTestRig(t, workRestTimers(), nil, []models.Automation{automation}, false)

	rig.seq.Start(0)
	rig.seq.Tick(2 * time.Second) // remaining 8s, trigger fires

	status := rig.seq.Status()
	if status.State != models.RunStatePaused {
		t.Errorf("Expected paused state after pause action, got %s", status.State)
	}
	if status.RemainingSeconds != 8 {
		t.Errorf("Expected 8s remaining preserved, got %v", status.RemainingSeconds)
	}
}

func TestSkipToNextTimerAction(t *testing.T) {
	automation := models.Automation{
		ID:       "a1",
		ListID:   "l1",
		Name:     "Skip work",
		Enabled:  true,
		Triggers: []models.Trigger{models.TimeRemainingTrigger{TimerName: "Work", Seconds: 8}},
		Actions:  []models.Action{models.SkipToNextTimerAction{}},
	}
	rig := newTestRig(t, workRestTimers(), nil, []models.Automation{automation}, false)

	rig.seq.Start(0)
	rig.seq.Tick(3 * time.Second) // remaining 7s, trigger fires, skip to Rest

	status := rig.seq.Status()
	if status.TimerName != "Rest" || status.Index != 1 {
		t.Errorf("Expected skip to Rest at index 1, got %s at %d", status.TimerName, status.Index)
	}
	if status.RemainingSeconds != 5 {
		t.Errorf("Expected fresh 5s countdown, got %v", status.RemainingSeconds)
	}
}

func TestTimeElapsedTriggerFiresAfterDelay(t *testing.T) {
	rig := newTestRig(t, workRestTimers(), nil, []models.Automation{
		soundAutomation("a1", "Early ping", models.TimeElapsedTrigger{TimerName: "Work", Seconds: 0.05}),
	}, false)

	rig.seq.Start(0)

	time.Sleep(150 * time.Millisecond)
	if got := countSound(rig.player.Played(), "beep_a1"); got != 1 {
		t.Errorf("Expected elapsed trigger to fire once, got %d", got)
	}
}

func TestIntervalTriggerRepeatsAndStopsAtTimerEnd(t *testing.T) {
	rig := newTestRig(t, workRestTimers(), nil, []models.Automation{
		soundAutomation("a1", "Metronome", models.IntervalTrigger{Seconds: 0.03}),
	}, false)

	rig.seq.Start(0)
	time.Sleep(110 * time.Millisecond)

	fired := countSound(rig.player.Played(), "beep_a1")
	if fired < 2 {
		t.Errorf("Expected interval to fire repeatedly, got %d", fired)
	}

	rig.seq.Tick(10 * time.Second) // Work ends, handles canceled
	time.Sleep(100 * time.Millisecond)
	if got := countSound(rig.player.Played(), "beep_a1"); got > fired+1 {
		t.Errorf("Expected interval to stop at timer end, got %d after %d", got, fired)
	}
}

// Pausing mid-run suspends scheduler-backed triggers; resuming restores them
// with their phase preserved.
func TestPauseSuspendsScheduledTriggers(t *testing.T) {
	rig := newTestRig(t, workRestTimers(), nil, []models.Automation{
		soundAutomation("a1", "Metronome", models.IntervalTrigger{Seconds: 0.04}),
	}, false)

	rig.seq.Start(0)
	time.Sleep(100 * time.Millisecond)

	rig.seq.Pause()
	rig.eng.OnPaused()
	firedAtPause := countSound(rig.player.Played(), "beep_a1")

	time.Sleep(120 * time.Millisecond)
	if got := countSound(rig.player.Played(), "beep_a1"); got > firedAtPause {
		t.Errorf("Expected no interval firings while paused, got %d after %d", got, firedAtPause)
	}

	rig.seq.Resume()
	rig.eng.OnResumed()
	time.Sleep(120 * time.Millisecond)
	if got := countSound(rig.player.Played(), "beep_a1"); got <= firedAtPause {
		t.Errorf("Expected interval to resume firing, got %d after %d", got, firedAtPause)
	}
}

// Skipping out of a paused run lands on the next timer with a live countdown;
// the scheduler must come out of pause with it or the new timer's interval
// and elapsed triggers stay dormant.
func TestSkipWhilePausedRestartsScheduledTriggers(t *testing.T) {
	rig := newTestRig(t, workRestTimers(), nil, []models.Automation{
		soundAutomation("a1", "Metronome", models.IntervalTrigger{Seconds: 0.03}),
	}, false)

	rig.seq.Start(0)
	rig.seq.Pause()
	rig.eng.OnPaused()

	rig.seq.SkipToNext()
	status := rig.seq.Status()
	if status.State != models.RunStateRunning || status.TimerName != "Rest" {
		t.Fatalf("Expected running on Rest after skip, got %s on %s", status.State, status.TimerName)
	}

	firedAtSkip := countSound(rig.player.Played(), "beep_a1")
	time.Sleep(150 * time.Millisecond)
	if got := countSound(rig.player.Played(), "beep_a1"); got <= firedAtSkip {
		t.Errorf("Expected interval trigger to fire for the running timer, got %d after %d", got, firedAtSkip)
	}
}

// Counter triggers resolve by name against the bound list only; a counter
// with the same name in another list must not fire them.
func TestCounterTriggerIgnoresOtherListsCounters(t *testing.T) {
	counters := []models.Counter{
		{ID: "c1", ListID: "l1", Name: "Reps", Value: 0, InitialValue: 0},
	}
	rig := newTestRig(t, workRestTimers(), counters, []models.Automation{
		soundAutomation("a1", "One rep", models.CounterValueTrigger{CounterName: "Reps", Target: 1}),
	}, false)

	if err := rig.st.CreateTimerList(models.TimerList{ID: "l2", Name: "Other list", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Failed to create list: %v", err)
	}
	if err := rig.st.CreateCounter(models.Counter{ID: "c2", ListID: "l2", Name: "Reps", Value: 0, InitialValue: 0}); err != nil {
		t.Fatalf("Failed to create counter: %v", err)
	}

	if _, err := rig.eng.IncrementCounter("c2"); err != nil {
		t.Fatalf("Failed to increment counter: %v", err)
	}
	if got := countSound(rig.player.Played(), "beep_a1"); got != 0 {
		t.Errorf("Expected no firing for another list's counter, got %d", got)
	}

	if _, err := rig.eng.IncrementCounter("c1"); err != nil {
		t.Fatalf("Failed to increment counter: %v", err)
	}
	if got := countSound(rig.player.Played(), "beep_a1"); got != 1 {
		t.Errorf("Expected firing for the bound list's counter, got %d", got)
	}
}

// Full pass: a three-timer autoplay list plays a completion sound per timer
// and ends idle.
func TestAutoplaySequenceCompletesWithSounds(t *testing.T) {
	timers := []models.TimerDefinition{
		{ID: "t1", ListID: "l1", Name: "A", Seconds: 1, Order: 0},
		{ID: "t2", ListID: "l1", Name: "B", Seconds: 1, Order: 1},
		{ID: "t3", ListID: "l1", Name: "C", Seconds: 1, Order: 2},
	}
	rig := newTestRig(t, timers, nil, nil, true)

	rig.seq.Start(0)
	for i := 0; i < 3; i++ {
		rig.seq.Tick(time.Second)
	}

	if status := rig.seq.Status(); status.State != models.RunStateIdle {
		t.Errorf("Expected idle after full sequence, got %s", status.State)
	}
	if got := countSound(rig.player.Played(), notify.DefaultCompletionSound); got != 3 {
		t.Errorf("Expected 3 completion sounds, got %d", got)
	}
}

func TestCounterOpOnMissingCounter(t *testing.T) {
	rig := newTestRig(t, workRestTimers(), nil, nil, false)

	if _, err := rig.eng.IncrementCounter("nope"); err != models.ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestReloadPicksUpNewAutomations(t *testing.T) {
	rig := newTestRig(t, workRestTimers(), nil, nil, false)

	rig.seq.Start(0)
	if got := countSound(rig.player.Played(), "beep_a1"); got != 0 {
		t.Errorf("Expected no firings before reload, got %d", got)
	}

	if err := rig.st.CreateAutomation(soundAutomation("a1", "Late arrival", models.AnyTimerStartTrigger{})); err != nil {
		t.Fatalf("Failed to create automation: %v", err)
	}
	if err := rig.eng.Reload(); err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}

	rig.seq.Stop()
	rig.eng.OnStopped()
	rig.seq.Start(0)
	if got := countSound(rig.player.Played(), "beep_a1"); got != 1 {
		t.Errorf("Expected firing after reload, got %d", got)
	}
}
