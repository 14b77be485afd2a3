// Package models defines the core data structures for TimerPipe.
//
// It includes timer lists, timer definitions, counters, and the automation
// model (triggers and actions), which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Validation constants for input validation
const (
	// MaxNameLength defines the maximum allowed length for entity names
	MaxNameLength = 200
	// MaxNotificationLength defines the maximum allowed length for notification messages
	MaxNotificationLength = 1000
	// MaxSoundIDLength defines the maximum allowed length for sound identifiers
	MaxSoundIDLength = 100
)

// Error variables for better error handling and testability
var (
	ErrEmptyName             = errors.New("name cannot be empty")
	ErrNameTooLong           = errors.New("name exceeds maximum length")
	ErrNonPositiveDuration   = errors.New("timer duration must be positive")
	ErrInvertedCounterBounds = errors.New("counter min value exceeds max value")
	ErrInitialOutOfBounds    = errors.New("counter initial value outside bounds")
	ErrNoTriggers            = errors.New("automation requires at least one trigger")
	ErrNoActions             = errors.New("automation requires at least one action")
	ErrMissingTimerRef       = errors.New("timer reference cannot be empty")
	ErrMissingCounterRef     = errors.New("counter reference cannot be empty")
	ErrNegativeThreshold     = errors.New("threshold seconds cannot be negative")
	ErrNonPositiveInterval   = errors.New("interval seconds must be positive")
	ErrZeroDelta             = errors.New("counter delta cannot be zero")
	ErrEmptySoundID          = errors.New("sound id cannot be empty")
	ErrEmptyMessage          = errors.New("notification message cannot be empty")
	ErrMessageTooLong        = errors.New("notification message exceeds maximum length")
	ErrUnknownTriggerKind    = errors.New("unknown trigger kind")
	ErrUnknownActionKind     = errors.New("unknown action kind")
	ErrEmptyCronExpr         = errors.New("cron expression cannot be empty")
	ErrNotFound              = errors.New("entity not found")
)

// TimerList is an ordered collection of timer definitions, counters, and
// automations. Deleting a list cascades to all of its children.
type TimerList struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Autoplay  bool      `json:"autoplay"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks a TimerList for storable consistency.
func (l *TimerList) Validate() error {
	return validateName(l.Name)
}

// TimerDefinition describes one countdown in a list. Order defines the
// sequence position and is unique within the owning list.
type TimerDefinition struct {
	ID      string  `json:"id"`
	ListID  string  `json:"list_id"`
	Name    string  `json:"name"`
	Seconds float64 `json:"seconds"`
	Order   int     `json:"order"`
}

// Duration returns the countdown length as a time.Duration.
func (t *TimerDefinition) Duration() time.Duration {
	return time.Duration(t.Seconds * float64(time.Second))
}

// Validate checks a TimerDefinition for storable consistency.
func (t *TimerDefinition) Validate() error {
	if err := validateName(t.Name); err != nil {
		return err
	}
	if t.Seconds <= 0 {
		return ErrNonPositiveDuration
	}
	return nil
}

// Counter is a bounded integer owned by a timer list. Value is clamped into
// [MinValue, MaxValue] whenever the bounds are present; mutation never leaves
// the value outside a bound. A Counter does not raise change notifications
// itself; the caller owning the mutation does.
type Counter struct {
	ID           string `json:"id"`
	ListID       string `json:"list_id"`
	Name         string `json:"name"`
	Value        int    `json:"value"`
	InitialValue int    `json:"initial_value"`
	MinValue     *int   `json:"min_value,omitempty"`
	MaxValue     *int   `json:"max_value,omitempty"`
	Order        int    `json:"order"`
}

// CanIncrement reports whether Increment would change the value.
func (c *Counter) CanIncrement() bool {
	return c.MaxValue == nil || c.Value < *c.MaxValue
}

// CanDecrement reports whether Decrement would change the value.
func (c *Counter) CanDecrement() bool {
	return c.MinValue == nil || c.Value > *c.MinValue
}

// Increment raises the value by one. No-op at the max bound.
func (c *Counter) Increment() {
	if c.CanIncrement() {
		c.Value++
	}
}

// Decrement lowers the value by one. No-op at the min bound.
func (c *Counter) Decrement() {
	if c.CanDecrement() {
		c.Value--
	}
}

// Reset sets the value back to the initial value. Bounds are assumed
// consistent with the initial value by construction, so no re-clamp happens.
func (c *Counter) Reset() {
	c.Value = c.InitialValue
}

// ApplyDelta adds delta to the value and clamps the result into the bounds.
func (c *Counter) ApplyDelta(delta int) {
	c.Value = c.Clamp(c.Value + delta)
}

// Clamp returns v clamped into the counter's bounds.
func (c *Counter) Clamp(v int) int {
	if c.MinValue != nil && v < *c.MinValue {
		v = *c.MinValue
	}
	if c.MaxValue != nil && v > *c.MaxValue {
		v = *c.MaxValue
	}
	return v
}

// Validate checks a Counter for storable consistency.
func (c *Counter) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	if c.MinValue != nil && c.MaxValue != nil && *c.MinValue > *c.MaxValue {
		return ErrInvertedCounterBounds
	}
	if c.Clamp(c.InitialValue) != c.InitialValue {
		return ErrInitialOutOfBounds
	}
	return nil
}

// Schedule is a wall-clock cron schedule that starts a timer list.
type Schedule struct {
	ID         string `json:"id"`
	ListID     string `json:"list_id"`
	Cron       string `json:"cron"`
	StartIndex int    `json:"start_index"`
}

// Validate checks a Schedule for storable consistency.
func (s *Schedule) Validate() error {
	if s.Cron == "" {
		return ErrEmptyCronExpr
	}
	return nil
}

// RunState identifies the sequencer's lifecycle state.
type RunState string

const (
	// RunStateIdle means no timer is active.
	RunStateIdle RunState = "idle"
	// RunStateRunning means a timer is counting down.
	RunStateRunning RunState = "running"
	// RunStatePaused means the countdown is halted but preserved.
	RunStatePaused RunState = "paused"
)

// RunStatus is a snapshot of the sequencer for status reporting.
type RunStatus struct {
	State            RunState `json:"state"`
	ListID           string   `json:"list_id,omitempty"`
	TimerID          string   `json:"timer_id,omitempty"`
	TimerName        string   `json:"timer_name,omitempty"`
	Index            int      `json:"index"`
	RemainingSeconds float64  `json:"remaining_seconds"`
}

func validateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}
