// Package engine evaluates automation triggers against timer lifecycle events
// and executes the matched actions.
//
// A single mutex serializes trigger evaluation, action execution, and counter
// mutation, so from the rules' point of view events happen on one timeline.
// Actions that drive the sequencer (pause, skip) are collected while the lock
// is held and executed after it is released, because the sequencer dispatches
// its resulting events back into the engine synchronously.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/TimerPipe/internal/metrics"
	"github.com/BTreeMap/TimerPipe/internal/models"
	"github.com/BTreeMap/TimerPipe/internal/notify"
	"github.com/BTreeMap/TimerPipe/internal/scheduler"
	"github.com/BTreeMap/TimerPipe/internal/store"
)

// SequencerControl is the subset of sequencer operations the engine's actions
// need. Defined here so the engine does not depend on the concrete sequencer.
type SequencerControl interface {
	Pause()
	SkipToNext()
}

// Opts holds configuration options for the Engine.
type Opts struct {
	Player   notify.Player
	Notifier notify.Notifier
}

// Option defines a configuration option for the Engine.
type Option func(*Opts)

// WithPlayer sets the sound playback collaborator.
func WithPlayer(p notify.Player) Option {
	return func(o *Opts) { o.Player = p }
}

// WithNotifier sets the notification collaborator.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// Engine matches automation triggers to events and runs their actions.
type Engine struct {
	mu       sync.Mutex
	st       store.Store
	sched    *scheduler.TaskScheduler
	player   notify.Player
	notifier notify.Notifier
	control  SequencerControl

	listID      string
	automations []models.Automation

	// armed tracks edge state for threshold triggers, keyed by
	// automation id and trigger index.
	armed map[string]bool

	// handles are scheduler tasks armed for the current timer.
	handles []string

	// pending holds sequencer control calls deferred until the lock is
	// released.
	pending []func()
}

// New creates an Engine backed by the given store and task scheduler.
func New(st store.Store, sched *scheduler.TaskScheduler, opts ...Option) *Engine {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Player == nil {
		cfg.Player = notify.LogPlayer{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.LogNotifier{}
	}
	slog.Debug("Creating Engine")
	return &Engine{
		st:       st,
		sched:    sched,
		player:   cfg.Player,
		notifier: cfg.Notifier,
		armed:    make(map[string]bool),
	}
}

// SetControl wires the sequencer control. Must be called before events flow.
func (e *Engine) SetControl(c SequencerControl) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.control = c
}

// Bind loads the automations of listID and makes them the active rule set.
func (e *Engine) Bind(listID string) error {
	automations, err := e.st.ListAutomations(listID)
	if err != nil {
		return fmt.Errorf("failed to load automations for list %s: %w", listID, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listID = listID
	e.automations = automations
	e.armed = make(map[string]bool)
	slog.Info("Engine bound to list", "listID", listID, "automations", len(automations))
	return nil
}

// Reload re-reads the active list's automations from the store. Used after
// automation edits while a run is in progress.
func (e *Engine) Reload() error {
	e.mu.Lock()
	listID := e.listID
	e.mu.Unlock()
	if listID == "" {
		return nil
	}
	return e.Bind(listID)
}

// OnTimerStarted evaluates start triggers and arms time-based scheduler tasks
// for the new timer. Any tasks left over from a previous timer are canceled
// first, so a skip cannot leak stale callbacks.
func (e *Engine) OnTimerStarted(timer models.TimerDefinition) {
	e.mu.Lock()
	e.cancelHandlesLocked()
	// A timer starting means the run is live. Skipping out of a paused run,
	// or starting another list over one, reaches here without a resume, so
	// clear any scheduler pause before arming tasks or none of them run.
	e.sched.ResumeAll()
	e.armed = make(map[string]bool)

	for _, a := range e.automations {
		if !a.Enabled {
			continue
		}
		for _, tr := range a.Triggers {
			switch t := tr.(type) {
			case models.TimerStartTrigger:
				if t.TimerName == timer.Name {
					e.fireLocked(a, tr)
				}
			case models.AnyTimerStartTrigger:
				e.fireLocked(a, tr)
			case models.TimeElapsedTrigger:
				if t.TimerName == timer.Name {
					auto, trig := a, tr
					h := e.sched.ScheduleOnce(secondsToDuration(t.Seconds), func() {
						e.fireFromScheduler(auto, trig)
					})
					e.handles = append(e.handles, h)
				}
			case models.IntervalTrigger:
				auto, trig := a, tr
				h := e.sched.ScheduleRepeating(secondsToDuration(t.Seconds), func() {
					e.fireFromScheduler(auto, trig)
				})
				e.handles = append(e.handles, h)
			}
		}
	}
	metrics.SetScheduledTasks(e.sched.ActiveCount())
	ops := e.takePendingLocked()
	e.mu.Unlock()
	runOps(ops)
}

// OnTimerTick evaluates time-remaining threshold triggers. Each trigger fires
// once when remaining crosses at or below its threshold and re-arms only when
// remaining rises back above it.
func (e *Engine) OnTimerTick(timer models.TimerDefinition, remaining time.Duration) {
	e.mu.Lock()
	for _, a := range e.automations {
		if !a.Enabled {
			continue
		}
		for i, tr := range a.Triggers {
			t, ok := tr.(models.TimeRemainingTrigger)
			if !ok || t.TimerName != timer.Name {
				continue
			}
			key := armedKey(a.ID, i)
			if remaining <= secondsToDuration(t.Seconds) {
				if !e.armed[key] {
					e.armed[key] = true
					e.fireLocked(a, tr)
				}
			} else {
				e.armed[key] = false
			}
		}
	}
	ops := e.takePendingLocked()
	e.mu.Unlock()
	runOps(ops)
}

// OnTimerEnded cancels the ended timer's scheduler tasks, clears threshold
// edge state, and evaluates end triggers.
func (e *Engine) OnTimerEnded(timer models.TimerDefinition) {
	e.mu.Lock()
	e.cancelHandlesLocked()
	e.armed = make(map[string]bool)

	for _, a := range e.automations {
		if !a.Enabled {
			continue
		}
		for _, tr := range a.Triggers {
			switch t := tr.(type) {
			case models.TimerEndTrigger:
				if t.TimerName == timer.Name {
					e.fireLocked(a, tr)
				}
			case models.AnyTimerEndTrigger:
				e.fireLocked(a, tr)
			}
		}
	}
	metrics.SetScheduledTasks(e.sched.ActiveCount())
	ops := e.takePendingLocked()
	e.mu.Unlock()
	runOps(ops)
}

// OnPaused suspends all scheduler tasks, preserving their elapsed progress.
func (e *Engine) OnPaused() {
	e.sched.PauseAll()
}

// OnResumed re-arms suspended scheduler tasks with their remaining waits.
func (e *Engine) OnResumed() {
	e.sched.ResumeAll()
}

// OnStopped discards all scheduler tasks and threshold edge state.
func (e *Engine) OnStopped() {
	e.sched.StopAll()
	e.mu.Lock()
	e.handles = nil
	e.armed = make(map[string]bool)
	e.mu.Unlock()
	metrics.SetScheduledTasks(0)
}

// IncrementCounter raises the counter by one, honoring its bounds, and
// evaluates counter triggers. Returns the updated counter.
func (e *Engine) IncrementCounter(id string) (*models.Counter, error) {
	return e.mutateCounter(id, func(c *models.Counter) { c.Increment() })
}

// DecrementCounter lowers the counter by one, honoring its bounds, and
// evaluates counter triggers. Returns the updated counter.
func (e *Engine) DecrementCounter(id string) (*models.Counter, error) {
	return e.mutateCounter(id, func(c *models.Counter) { c.Decrement() })
}

// ResetCounter restores the counter to its initial value and evaluates
// counter triggers. Returns the updated counter.
func (e *Engine) ResetCounter(id string) (*models.Counter, error) {
	return e.mutateCounter(id, func(c *models.Counter) { c.Reset() })
}

// AdjustCounter applies delta to the counter, clamped to its bounds, and
// evaluates counter triggers. Returns the updated counter.
func (e *Engine) AdjustCounter(id string, delta int) (*models.Counter, error) {
	return e.mutateCounter(id, func(c *models.Counter) { c.ApplyDelta(delta) })
}

func (e *Engine) mutateCounter(id string, mutate func(*models.Counter)) (*models.Counter, error) {
	e.mu.Lock()
	counter, err := e.st.GetCounter(id)
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to load counter %s: %w", id, err)
	}
	if counter == nil {
		e.mu.Unlock()
		return nil, models.ErrNotFound
	}
	old := counter.Value
	mutate(counter)
	if counter.Value != old {
		if err := e.st.UpdateCounterValue(counter.ID, counter.Value); err != nil {
			slog.Error("Engine failed to persist counter value", "counterID", counter.ID, "error", err)
		}
		e.onCounterChangedLocked(*counter, old)
	}
	result := *counter
	ops := e.takePendingLocked()
	e.mu.Unlock()
	runOps(ops)
	return &result, nil
}

// fireFromScheduler is the entry point for delayed and repeating tasks. The
// scheduler invokes callbacks without holding its own lock.
func (e *Engine) fireFromScheduler(a models.Automation, tr models.Trigger) {
	e.mu.Lock()
	e.fireLocked(a, tr)
	ops := e.takePendingLocked()
	e.mu.Unlock()
	runOps(ops)
}

// fireLocked runs the automation's actions in order.
func (e *Engine) fireLocked(a models.Automation, tr models.Trigger) {
	slog.Info("Automation fired", "automation", a.Name, "trigger", tr.Kind())
	metrics.IncAutomationFired(string(tr.Kind()))

	for _, act := range a.Actions {
		metrics.IncActionExecuted(string(act.Kind()))
		switch action := act.(type) {
		case models.PlaySoundAction:
			if err := e.player.Play(context.Background(), action.SoundID); err != nil {
				slog.Error("Engine play sound failed", "soundID", action.SoundID, "error", err)
				metrics.IncNotifyFailure("player")
			}
		case models.ModifyCounterAction:
			e.modifyCounterByNameLocked(action.CounterName, action.Delta)
		case models.ShowNotificationAction:
			if err := e.notifier.Show(context.Background(), action.Message); err != nil {
				slog.Error("Engine show notification failed", "error", err)
				metrics.IncNotifyFailure("notifier")
			}
		case models.PauseActiveTimerAction:
			e.pending = append(e.pending, func() {
				if e.control != nil {
					e.control.Pause()
				}
				e.sched.PauseAll()
			})
		case models.SkipToNextTimerAction:
			e.pending = append(e.pending, func() {
				if e.control != nil {
					e.control.SkipToNext()
				}
			})
		default:
			slog.Warn("Engine skipping unknown action", "kind", act.Kind())
		}
	}
}

// modifyCounterByNameLocked applies delta to every counter in the active list
// with the given name. Counters are referenced by name, so an unresolved
// reference is a silent no-op and multiple matches all receive the delta.
func (e *Engine) modifyCounterByNameLocked(name string, delta int) {
	counters, err := e.st.ListCounters(e.listID)
	if err != nil {
		slog.Error("Engine failed to list counters", "listID", e.listID, "error", err)
		return
	}
	for i := range counters {
		c := &counters[i]
		if c.Name != name {
			continue
		}
		old := c.Value
		c.ApplyDelta(delta)
		if c.Value == old {
			continue
		}
		if err := e.st.UpdateCounterValue(c.ID, c.Value); err != nil {
			slog.Error("Engine failed to persist counter value", "counterID", c.ID, "error", err)
		}
		e.onCounterChangedLocked(*c, old)
	}
}

// onCounterChangedLocked evaluates counter-value triggers for a transition
// from old to c.Value. A trigger fires only when the value becomes the
// target, not while it stays there. Triggers resolve names against the bound
// list only, so a counter from another list never matches by name alone.
func (e *Engine) onCounterChangedLocked(c models.Counter, old int) {
	slog.Debug("Counter changed", "name", c.Name, "listID", c.ListID, "from", old, "to", c.Value)
	if c.ListID != e.listID {
		return
	}
	for _, a := range e.automations {
		if !a.Enabled {
			continue
		}
		for _, tr := range a.Triggers {
			t, ok := tr.(models.CounterValueTrigger)
			if !ok || t.CounterName != c.Name {
				continue
			}
			if c.Value == t.Target && old != t.Target {
				e.fireLocked(a, tr)
			}
		}
	}
}

func (e *Engine) cancelHandlesLocked() {
	for _, h := range e.handles {
		e.sched.Cancel(h)
	}
	e.handles = nil
}

func (e *Engine) takePendingLocked() []func() {
	ops := e.pending
	e.pending = nil
	return ops
}

func runOps(ops []func()) {
	for _, op := range ops {
		op()
	}
}

func armedKey(automationID string, triggerIndex int) string {
	return fmt.Sprintf("%s#%d", automationID, triggerIndex)
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
