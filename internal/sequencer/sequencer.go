// Package sequencer drives one active countdown at a time across an ordered
// list of timer definitions.
//
// The sequencer is a small state machine (Idle -> Running -> Paused ->
// Running, or back to Idle) advanced by a fixed heartbeat. State transitions
// are computed under the sequencer's lock; listener callbacks are dispatched
// after the lock is released, in order, so listeners may call back into the
// sequencer.
package sequencer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/TimerPipe/internal/metrics"
	"github.com/BTreeMap/TimerPipe/internal/models"
	"github.com/BTreeMap/TimerPipe/internal/notify"
)

// DefaultHeartbeat is the tick interval driving the countdown. Threshold
// trigger precision is bounded by this granularity.
const DefaultHeartbeat = 100 * time.Millisecond

// Listener receives timer lifecycle events. Callbacks run synchronously on
// the tick path and must not block.
type Listener interface {
	OnTimerStarted(timer models.TimerDefinition)
	OnTimerTick(timer models.TimerDefinition, remaining time.Duration)
	OnTimerEnded(timer models.TimerDefinition)
}

// Opts holds configuration options for the Sequencer.
type Opts struct {
	Heartbeat time.Duration
	Player    notify.Player
}

// Option defines a configuration option for the Sequencer.
type Option func(*Opts)

// WithHeartbeat overrides the tick interval. A zero or negative value
// disables the internal heartbeat loop entirely; Tick must then be driven by
// the caller (used in tests).
func WithHeartbeat(d time.Duration) Option {
	return func(o *Opts) { o.Heartbeat = d }
}

// WithPlayer sets the playback collaborator used for the completion sound.
func WithPlayer(p notify.Player) Option {
	return func(o *Opts) { o.Player = p }
}

// event is a queued listener callback produced under the lock.
type event struct {
	kind      eventKind
	timer     models.TimerDefinition
	remaining time.Duration
}

type eventKind int

const (
	eventStarted eventKind = iota
	eventTick
	eventEnded
)

// Sequencer advances through a loaded timer list, one countdown at a time.
type Sequencer struct {
	mu        sync.Mutex
	heartbeat time.Duration
	player    notify.Player
	listeners []Listener

	listID    string
	autoplay  bool
	timers    []models.TimerDefinition
	state     models.RunState
	index     int
	remaining time.Duration

	stopCh  chan struct{}
	looping bool
}

// New creates a Sequencer with the provided options.
func New(opts ...Option) *Sequencer {
	cfg := Opts{Heartbeat: DefaultHeartbeat}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Player == nil {
		cfg.Player = notify.LogPlayer{}
	}
	slog.Debug("Creating Sequencer", "heartbeat", cfg.Heartbeat)
	return &Sequencer{
		heartbeat: cfg.Heartbeat,
		player:    cfg.Player,
		state:     models.RunStateIdle,
		index:     -1,
	}
}

// AddListener registers a lifecycle listener.
func (s *Sequencer) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Load replaces the active timer list. Any run in progress is stopped first.
func (s *Sequencer) Load(listID string, autoplay bool, timers []models.TimerDefinition) {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listID = listID
	s.autoplay = autoplay
	s.timers = append([]models.TimerDefinition(nil), timers...)
	slog.Debug("Sequencer loaded list", "listID", listID, "timers", len(timers), "autoplay", autoplay)
}

// Start begins the countdown at fromIndex. When the sequencer is paused it
// resumes the preserved countdown instead of restarting.
func (s *Sequencer) Start(fromIndex int) {
	s.mu.Lock()
	if s.state == models.RunStatePaused {
		s.state = models.RunStateRunning
		s.ensureLoopLocked()
		slog.Info("Sequencer resumed via Start", "index", s.index, "remaining", s.remaining)
		s.mu.Unlock()
		return
	}
	if fromIndex < 0 || fromIndex >= len(s.timers) {
		slog.Warn("Sequencer Start: index out of range", "index", fromIndex, "timers", len(s.timers))
		s.mu.Unlock()
		return
	}
	events := s.startLocked(fromIndex)
	s.ensureLoopLocked()
	s.mu.Unlock()
	s.dispatch(events)
}

// Pause halts the countdown, preserving the current index and remaining time.
func (s *Sequencer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.RunStateRunning {
		return
	}
	s.state = models.RunStatePaused
	slog.Info("Sequencer paused", "index", s.index, "remaining", s.remaining)
}

// Resume continues the countdown from the preserved remaining time. Only
// valid from the paused state.
func (s *Sequencer) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.RunStatePaused {
		return
	}
	s.state = models.RunStateRunning
	s.ensureLoopLocked()
	slog.Info("Sequencer resumed", "index", s.index, "remaining", s.remaining)
}

// Stop clears the current index and remaining time regardless of prior state.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// SkipToNext advances to the next timer and restarts; with no next timer it
// stops the sequence.
func (s *Sequencer) SkipToNext() {
	s.mu.Lock()
	if s.state == models.RunStateIdle {
		s.mu.Unlock()
		return
	}
	var events []event
	if s.index+1 < len(s.timers) {
		events = s.startLocked(s.index + 1)
		slog.Info("Sequencer skipped to next timer", "index", s.index)
	} else {
		s.stopLocked()
	}
	s.mu.Unlock()
	s.dispatch(events)
}

// Tick advances the countdown by delta. Called by the heartbeat loop, or
// directly in tests.
func (s *Sequencer) Tick(delta time.Duration) {
	s.mu.Lock()
	if s.state != models.RunStateRunning || s.index < 0 || s.index >= len(s.timers) {
		s.mu.Unlock()
		return
	}
	current := s.timers[s.index]
	s.remaining -= delta

	reported := s.remaining
	if reported < 0 {
		reported = 0
	}
	events := []event{{kind: eventTick, timer: current, remaining: reported}}

	var completionSound bool
	if s.remaining <= 0 {
		events = append(events, event{kind: eventEnded, timer: current})
		completionSound = true
		metrics.IncTimerCompleted()
		if s.autoplay && s.index+1 < len(s.timers) {
			events = append(events, s.startLocked(s.index+1)...)
		} else {
			s.stopLocked()
		}
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.dispatch([]event{ev})
		if completionSound && ev.kind == eventEnded {
			if err := s.player.Play(context.Background(), notify.DefaultCompletionSound); err != nil {
				slog.Error("Sequencer completion sound failed", "error", err)
			}
		}
	}
}

// Status returns a snapshot of the sequencer state.
func (s *Sequencer) Status() models.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := models.RunStatus{
		State:  s.state,
		ListID: s.listID,
		Index:  s.index,
	}
	if s.state != models.RunStateIdle && s.index >= 0 && s.index < len(s.timers) {
		t := s.timers[s.index]
		status.TimerID = t.ID
		status.TimerName = t.Name
		status.RemainingSeconds = s.remaining.Seconds()
	}
	return status
}

// Shutdown stops the run and terminates the heartbeat loop.
func (s *Sequencer) Shutdown() {
	s.mu.Lock()
	s.stopLocked()
	if s.looping {
		close(s.stopCh)
		s.looping = false
	}
	s.mu.Unlock()
}

// startLocked positions the sequence at index and produces the started event.
func (s *Sequencer) startLocked(index int) []event {
	t := s.timers[index]
	s.index = index
	s.remaining = t.Duration()
	s.state = models.RunStateRunning
	metrics.IncTimerStarted()
	slog.Info("Sequencer started timer", "index", index, "name", t.Name, "duration", s.remaining)
	return []event{{kind: eventStarted, timer: t}}
}

func (s *Sequencer) stopLocked() {
	if s.state == models.RunStateIdle {
		return
	}
	s.state = models.RunStateIdle
	s.index = -1
	s.remaining = 0
	slog.Info("Sequencer stopped")
}

// ensureLoopLocked starts the heartbeat goroutine if it is not running.
func (s *Sequencer) ensureLoopLocked() {
	if s.heartbeat <= 0 || s.looping {
		return
	}
	s.stopCh = make(chan struct{})
	s.looping = true
	go s.run(s.stopCh)
}

func (s *Sequencer) run(stopCh chan struct{}) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.Tick(s.heartbeat)
		}
	}
}

// dispatch delivers queued events to every listener, outside the lock.
func (s *Sequencer) dispatch(events []event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, ev := range events {
		for _, l := range listeners {
			switch ev.kind {
			case eventStarted:
				l.OnTimerStarted(ev.timer)
			case eventTick:
				l.OnTimerTick(ev.timer, ev.remaining)
			case eventEnded:
				l.OnTimerEnded(ev.timer)
			}
		}
	}
}
