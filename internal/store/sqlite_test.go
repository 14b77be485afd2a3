package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/TimerPipe/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "timerpipe_test.db")
	st, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("Failed to open SQLite store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteTimerListRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)

	list := models.TimerList{ID: "l1", Name: "Workout", Autoplay: true, CreatedAt: time.Now().UTC().Truncate(time.Second)}
	if err := st.CreateTimerList(list); err != nil {
		t.Fatalf("Failed to create list: %v", err)
	}

	got, err := st.GetTimerList("l1")
	if err != nil {
		t.Fatalf("Failed to get list: %v", err)
	}
	if got == nil || got.Name != "Workout" || !got.Autoplay {
		t.Errorf("Unexpected list: %+v", got)
	}

	missing, err := st.GetTimerList("nope")
	if err != nil {
		t.Fatalf("Unexpected error for missing list: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for missing list, got %+v", missing)
	}
}

func TestSQLiteTimersAndCounters(t *testing.T) {
	st := newTestSQLiteStore(t)

	if err := st.CreateTimerList(models.TimerList{ID: "l1", Name: "Workout", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("Failed to create list: %v", err)
	}

	timers := []models.TimerDefinition{
		{ID: "t2", ListID: "l1", Name: "Rest", Seconds: 30, Order: 1},
		{ID: "t1", ListID: "l1", Name: "Plank", Seconds: 60.5, Order: 0},
	}
	for _, timer := range timers {
		if err := st.CreateTimer(timer); err != nil {
			t.Fatalf("Failed to create timer: %v", err)
		}
	}

	got, err := st.ListTimers("l1")
	if err != nil {
		t.Fatalf("Failed to list timers: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Plank" || got[1].Name != "Rest" {
		t.Errorf("Expected timers sorted by order, got %+v", got)
	}
	if got[0].Seconds != 60.5 {
		t.Errorf("Expected fractional seconds preserved, got %v", got[0].Seconds)
	}

	// Duplicate order violates the unique constraint.
	if err := st.CreateTimer(models.TimerDefinition{ID: "t3", ListID: "l1", Name: "Clash", Seconds: 5, Order: 0}); err == nil {
		t.Error("Expected duplicate order to be rejected")
	}

	min, max := 0, 10
	counter := models.Counter{ID: "c1", ListID: "l1", Name: "Sets", Value: 0, InitialValue: 0, MinValue: &min, MaxValue: &max, Order: 0}
	if err := st.CreateCounter(counter); err != nil {
		t.Fatalf("Failed to create counter: %v", err)
	}
	if err := st.UpdateCounterValue("c1", 4); err != nil {
		t.Fatalf("Failed to update counter: %v", err)
	}
	gotCounter, err := st.GetCounter("c1")
	if err != nil || gotCounter == nil {
		t.Fatalf("Failed to get counter: %v", err)
	}
	if gotCounter.Value != 4 {
		t.Errorf("Expected value 4, got %d", gotCounter.Value)
	}
	if gotCounter.MinValue == nil || *gotCounter.MinValue != 0 || gotCounter.MaxValue == nil || *gotCounter.MaxValue != 10 {
		t.Errorf("Expected bounds preserved, got %+v", gotCounter)
	}
}

func TestSQLiteAutomationChildren(t *testing.T) {
	st := newTestSQLiteStore(t)

	if err := st.CreateTimerList(models.TimerList{ID: "l1", Name: "Workout", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("Failed to create list: %v", err)
	}

	automation := models.Automation{
		ID:      "a1",
		ListID:  "l1",
		Name:    "Halfway chime",
		Enabled: true,
		Order:   0,
		Triggers: []models.Trigger{
			models.TimeRemainingTrigger{TimerName: "Plank", Seconds: 30},
			models.CounterValueTrigger{CounterName: "Sets", Target: 5},
		},
		Actions: []models.Action{
			models.PlaySoundAction{SoundID: "chime"},
			models.ModifyCounterAction{CounterName: "Sets", Delta: 1},
			models.PauseActiveTimerAction{},
		},
	}
	if err := st.CreateAutomation(automation); err != nil {
		t.Fatalf("Failed to create automation: %v", err)
	}

	got, err := st.ListAutomations("l1")
	if err != nil {
		t.Fatalf("Failed to list automations: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 automation, got %d", len(got))
	}
	if len(got[0].Triggers) != 2 || len(got[0].Actions) != 3 {
		t.Fatalf("Expected 2 triggers and 3 actions, got %d and %d", len(got[0].Triggers), len(got[0].Actions))
	}
	if tr, ok := got[0].Triggers[0].(models.TimeRemainingTrigger); !ok || tr.Seconds != 30 || tr.TimerName != "Plank" {
		t.Errorf("Expected TimeRemainingTrigger{Plank, 30}, got %#v", got[0].Triggers[0])
	}
	if _, ok := got[0].Actions[2].(models.PauseActiveTimerAction); !ok {
		t.Errorf("Expected PauseActiveTimerAction, got %#v", got[0].Actions[2])
	}

	// Update replaces the children wholesale.
	automation.Triggers = []models.Trigger{models.AnyTimerEndTrigger{}}
	automation.Actions = []models.Action{models.ShowNotificationAction{Message: "Done"}}
	if err := st.UpdateAutomation(automation); err != nil {
		t.Fatalf("Failed to update automation: %v", err)
	}
	got, _ = st.ListAutomations("l1")
	if len(got) != 1 || len(got[0].Triggers) != 1 || len(got[0].Actions) != 1 {
		t.Fatalf("Expected replaced children, got %+v", got)
	}
	if act, ok := got[0].Actions[0].(models.ShowNotificationAction); !ok || act.Message != "Done" {
		t.Errorf("Expected ShowNotificationAction{Done}, got %#v", got[0].Actions[0])
	}
}

func TestSQLiteDeleteTimerListCascades(t *testing.T) {
	st := newTestSQLiteStore(t)

	if err := st.CreateTimerList(models.TimerList{ID: "l1", Name: "Workout", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("Failed to create list: %v", err)
	}
	if err := st.CreateTimer(models.TimerDefinition{ID: "t1", ListID: "l1", Name: "Plank", Seconds: 60, Order: 0}); err != nil {
		t.Fatalf("Failed to create timer: %v", err)
	}
	if err := st.CreateCounter(models.Counter{ID: "c1", ListID: "l1", Name: "Sets"}); err != nil {
		t.Fatalf("Failed to create counter: %v", err)
	}
	if err := st.CreateAutomation(models.Automation{
		ID: "a1", ListID: "l1", Name: "Rule", Enabled: true,
		Triggers: []models.Trigger{models.AnyTimerStartTrigger{}},
		Actions:  []models.Action{models.PlaySoundAction{SoundID: "beep"}},
	}); err != nil {
		t.Fatalf("Failed to create automation: %v", err)
	}
	if err := st.CreateSchedule(models.Schedule{ID: "s1", ListID: "l1", Cron: "0 7 * * *", StartIndex: 0}); err != nil {
		t.Fatalf("Failed to create schedule: %v", err)
	}

	if err := st.DeleteTimerList("l1"); err != nil {
		t.Fatalf("Failed to delete list: %v", err)
	}

	if timers, _ := st.ListTimers("l1"); len(timers) != 0 {
		t.Errorf("Expected timers cascade-deleted, got %d", len(timers))
	}
	if counters, _ := st.ListCounters("l1"); len(counters) != 0 {
		t.Errorf("Expected counters cascade-deleted, got %d", len(counters))
	}
	if automations, _ := st.ListAutomations("l1"); len(automations) != 0 {
		t.Errorf("Expected automations cascade-deleted, got %d", len(automations))
	}
	if schedules, _ := st.ListSchedules(); len(schedules) != 0 {
		t.Errorf("Expected schedules cascade-deleted, got %d", len(schedules))
	}
}

func TestSQLiteSchedules(t *testing.T) {
	st := newTestSQLiteStore(t)

	if err := st.CreateTimerList(models.TimerList{ID: "l1", Name: "Workout", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("Failed to create list: %v", err)
	}
	sched := models.Schedule{ID: "s1", ListID: "l1", Cron: "30 6 * * 1-5", StartIndex: 2}
	if err := st.CreateSchedule(sched); err != nil {
		t.Fatalf("Failed to create schedule: %v", err)
	}

	schedules, err := st.ListSchedules()
	if err != nil {
		t.Fatalf("Failed to list schedules: %v", err)
	}
	if len(schedules) != 1 || schedules[0].Cron != "30 6 * * 1-5" || schedules[0].StartIndex != 2 {
		t.Errorf("Unexpected schedules: %+v", schedules)
	}

	if err := st.DeleteSchedule("s1"); err != nil {
		t.Fatalf("Failed to delete schedule: %v", err)
	}
	if schedules, _ := st.ListSchedules(); len(schedules) != 0 {
		t.Errorf("Expected no schedules after delete, got %d", len(schedules))
	}
}
