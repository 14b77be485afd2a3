// Package scheduler provides timed-callback scheduling for TimerPipe.
//
// This file implements cancelable one-shot and repeating tasks whose elapsed
// progress survives pause/resume cycles.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// taskEntry tracks information about a scheduled task.
type taskEntry struct {
	timer     *time.Timer
	fn        func()
	period    time.Duration // full period for repeating tasks, delay for one-shots
	repeating bool
	armedAt   time.Time     // last arming instant (schedule, fire, or resume)
	elapsed   time.Duration // time accumulated before armedAt across pauses
}

// TaskScheduler issues cancelable one-shot and repeating timed callbacks.
//
// PauseAll records, per task, the wall time elapsed since the task last fired
// (or was scheduled); ResumeAll re-arms each task with the remaining wait so
// the phase within a repeating period is preserved. Elapsed time accumulates
// across multiple pause/resume cycles and is only discarded by StopAll.
type TaskScheduler struct {
	mu     sync.Mutex
	tasks  map[string]*taskEntry
	nextID int64
	paused bool
}

// NewTaskScheduler creates an empty TaskScheduler.
func NewTaskScheduler() *TaskScheduler {
	slog.Debug("Creating TaskScheduler")
	return &TaskScheduler{
		tasks: make(map[string]*taskEntry),
	}
}

// ScheduleOnce schedules fn to run once after delay and returns the task handle.
func (s *TaskScheduler) ScheduleOnce(delay time.Duration, fn func()) string {
	return s.schedule(delay, fn, false)
}

// ScheduleRepeating schedules fn to run every period and returns the task handle.
func (s *TaskScheduler) ScheduleRepeating(period time.Duration, fn func()) string {
	return s.schedule(period, fn, true)
}

func (s *TaskScheduler) schedule(period time.Duration, fn func(), repeating bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := fmt.Sprintf("task_%d", s.nextID)

	entry := &taskEntry{
		fn:        fn,
		period:    period,
		repeating: repeating,
		armedAt:   time.Now(),
	}
	if !s.paused {
		entry.timer = time.AfterFunc(period, func() { s.fire(id) })
	}
	s.tasks[id] = entry

	slog.Debug("TaskScheduler scheduled", "id", id, "period", period, "repeating", repeating, "paused", s.paused)
	return id
}

// fire runs a task's callback and re-arms repeating tasks at their full period.
func (s *TaskScheduler) fire(id string) {
	s.mu.Lock()
	entry, exists := s.tasks[id]
	if !exists || s.paused {
		s.mu.Unlock()
		return
	}
	fn := entry.fn
	if entry.repeating {
		entry.elapsed = 0
		entry.armedAt = time.Now()
		entry.timer = time.AfterFunc(entry.period, func() { s.fire(id) })
	} else {
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	slog.Debug("TaskScheduler executing task", "id", id)
	fn()
}

// Cancel stops and removes a task by handle. Unknown handles are ignored.
func (s *TaskScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.tasks[id]; exists {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(s.tasks, id)
		slog.Debug("TaskScheduler Cancel succeeded", "id", id)
		return
	}
	slog.Debug("TaskScheduler Cancel: task not found", "id", id)
}

// PauseAll halts every task, recording each task's elapsed progress.
func (s *TaskScheduler) PauseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return
	}
	s.paused = true
	now := time.Now()
	for id, entry := range s.tasks {
		if entry.timer != nil {
			entry.timer.Stop()
			entry.timer = nil
		}
		entry.elapsed += now.Sub(entry.armedAt)
		slog.Debug("TaskScheduler paused task", "id", id, "elapsed", entry.elapsed)
	}
	slog.Debug("TaskScheduler PauseAll succeeded", "count", len(s.tasks))
}

// ResumeAll re-arms every task with its remaining wait: for repeating tasks
// the phase within the period is preserved, for one-shots the already-served
// portion of the delay is subtracted.
func (s *TaskScheduler) ResumeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused {
		return
	}
	s.paused = false
	now := time.Now()
	for id, entry := range s.tasks {
		var remaining time.Duration
		if entry.repeating {
			remaining = entry.period - entry.elapsed%entry.period
		} else {
			remaining = entry.period - entry.elapsed
			if remaining < 0 {
				remaining = 0
			}
		}
		entry.armedAt = now
		taskID := id
		entry.timer = time.AfterFunc(remaining, func() { s.fire(taskID) })
		slog.Debug("TaskScheduler resumed task", "id", id, "remaining", remaining)
	}
	slog.Debug("TaskScheduler ResumeAll succeeded", "count", len(s.tasks))
}

// StopAll cancels every task and discards all elapsed-time bookkeeping.
func (s *TaskScheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.tasks {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	count := len(s.tasks)
	s.tasks = make(map[string]*taskEntry)
	s.paused = false
	slog.Debug("TaskScheduler StopAll succeeded", "count", count)
}

// ActiveCount returns the number of outstanding task handles.
func (s *TaskScheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
