// Package models defines the core data structures for TimerPipe.
//
// This file defines the automation model: closed tagged unions for triggers
// and actions, and their JSON wire format.
package models

import (
	"encoding/json"
	"fmt"
)

// TriggerKind identifies the condition variant of a trigger.
type TriggerKind string

const (
	// TriggerTimerStart fires when the named timer starts.
	TriggerTimerStart TriggerKind = "timer_start"
	// TriggerTimerEnd fires when the named timer ends.
	TriggerTimerEnd TriggerKind = "timer_end"
	// TriggerAnyTimerStart fires when any timer starts.
	TriggerAnyTimerStart TriggerKind = "any_timer_start"
	// TriggerAnyTimerEnd fires when any timer ends.
	TriggerAnyTimerEnd TriggerKind = "any_timer_end"
	// TriggerTimeRemaining fires once per descent below a remaining-time threshold.
	TriggerTimeRemaining TriggerKind = "time_remaining"
	// TriggerTimeElapsed fires once a fixed offset after the named timer starts.
	TriggerTimeElapsed TriggerKind = "time_elapsed"
	// TriggerInterval fires repeatedly at a fixed period while a timer runs.
	TriggerInterval TriggerKind = "interval"
	// TriggerCounterValue fires when a counter reaches a target value.
	TriggerCounterValue TriggerKind = "counter_value"
)

// Trigger is a closed union over trigger variants. Each variant carries
// exactly the fields its kind requires. Timer and counter references are
// names, not ids, resolved against the owning list at evaluation time.
type Trigger interface {
	Kind() TriggerKind
	validateTrigger() error
}

// TimerStartTrigger fires when the timer named TimerName starts.
type TimerStartTrigger struct {
	TimerName string
}

// TimerEndTrigger fires when the timer named TimerName ends.
type TimerEndTrigger struct {
	TimerName string
}

// AnyTimerStartTrigger fires whenever any timer in the list starts.
type AnyTimerStartTrigger struct{}

// AnyTimerEndTrigger fires whenever any timer in the list ends.
type AnyTimerEndTrigger struct{}

// TimeRemainingTrigger fires when the named timer's remaining time first
// drops to or below Seconds.
type TimeRemainingTrigger struct {
	TimerName string
	Seconds   float64
}

// TimeElapsedTrigger fires Seconds after the named timer starts.
type TimeElapsedTrigger struct {
	TimerName string
	Seconds   float64
}

// IntervalTrigger fires every Seconds while a timer is active, regardless of
// which timer that is.
type IntervalTrigger struct {
	Seconds float64
}

// CounterValueTrigger fires when the named counter's value becomes Target.
type CounterValueTrigger struct {
	CounterName string
	Target      int
}

func (t TimerStartTrigger) Kind() TriggerKind    { return TriggerTimerStart }
func (t TimerEndTrigger) Kind() TriggerKind      { return TriggerTimerEnd }
func (t AnyTimerStartTrigger) Kind() TriggerKind { return TriggerAnyTimerStart }
func (t AnyTimerEndTrigger) Kind() TriggerKind   { return TriggerAnyTimerEnd }
func (t TimeRemainingTrigger) Kind() TriggerKind { return TriggerTimeRemaining }
func (t TimeElapsedTrigger) Kind() TriggerKind   { return TriggerTimeElapsed }
func (t IntervalTrigger) Kind() TriggerKind      { return TriggerInterval }
func (t CounterValueTrigger) Kind() TriggerKind  { return TriggerCounterValue }

func (t TimerStartTrigger) validateTrigger() error {
	if t.TimerName == "" {
		return ErrMissingTimerRef
	}
	return nil
}

func (t TimerEndTrigger) validateTrigger() error {
	if t.TimerName == "" {
		return ErrMissingTimerRef
	}
	return nil
}

func (t AnyTimerStartTrigger) validateTrigger() error { return nil }
func (t AnyTimerEndTrigger) validateTrigger() error   { return nil }

func (t TimeRemainingTrigger) validateTrigger() error {
	if t.TimerName == "" {
		return ErrMissingTimerRef
	}
	if t.Seconds < 0 {
		return ErrNegativeThreshold
	}
	return nil
}

func (t TimeElapsedTrigger) validateTrigger() error {
	if t.TimerName == "" {
		return ErrMissingTimerRef
	}
	if t.Seconds < 0 {
		return ErrNegativeThreshold
	}
	return nil
}

func (t IntervalTrigger) validateTrigger() error {
	if t.Seconds <= 0 {
		return ErrNonPositiveInterval
	}
	return nil
}

func (t CounterValueTrigger) validateTrigger() error {
	if t.CounterName == "" {
		return ErrMissingCounterRef
	}
	return nil
}

// ActionKind identifies the effect variant of an action.
type ActionKind string

const (
	// ActionPlaySound plays a sound through the playback collaborator.
	ActionPlaySound ActionKind = "play_sound"
	// ActionModifyCounter adds a delta to every counter matching a name.
	ActionModifyCounter ActionKind = "modify_counter"
	// ActionShowNotification shows a message through the notification collaborator.
	ActionShowNotification ActionKind = "show_notification"
	// ActionPauseActiveTimer pauses the running sequence.
	ActionPauseActiveTimer ActionKind = "pause_active_timer"
	// ActionSkipToNextTimer advances the sequence to the next timer.
	ActionSkipToNextTimer ActionKind = "skip_to_next_timer"
)

// Action is a closed union over action variants.
type Action interface {
	Kind() ActionKind
	validateAction() error
}

// PlaySoundAction plays the identified sound.
type PlaySoundAction struct {
	SoundID string
}

// ModifyCounterAction applies Delta to every counter named CounterName.
type ModifyCounterAction struct {
	CounterName string
	Delta       int
}

// ShowNotificationAction displays Message to the user.
type ShowNotificationAction struct {
	Message string
}

// PauseActiveTimerAction pauses the active timer.
type PauseActiveTimerAction struct{}

// SkipToNextTimerAction skips to the next timer in the sequence.
type SkipToNextTimerAction struct{}

func (a PlaySoundAction) Kind() ActionKind        { return ActionPlaySound }
func (a ModifyCounterAction) Kind() ActionKind    { return ActionModifyCounter }
func (a ShowNotificationAction) Kind() ActionKind { return ActionShowNotification }
func (a PauseActiveTimerAction) Kind() ActionKind { return ActionPauseActiveTimer }
func (a SkipToNextTimerAction) Kind() ActionKind  { return ActionSkipToNextTimer }

func (a PlaySoundAction) validateAction() error {
	if a.SoundID == "" {
		return ErrEmptySoundID
	}
	if len(a.SoundID) > MaxSoundIDLength {
		return ErrNameTooLong
	}
	return nil
}

func (a ModifyCounterAction) validateAction() error {
	if a.CounterName == "" {
		return ErrMissingCounterRef
	}
	if a.Delta == 0 {
		return ErrZeroDelta
	}
	return nil
}

func (a ShowNotificationAction) validateAction() error {
	if a.Message == "" {
		return ErrEmptyMessage
	}
	if len(a.Message) > MaxNotificationLength {
		return ErrMessageTooLong
	}
	return nil
}

func (a PauseActiveTimerAction) validateAction() error { return nil }
func (a SkipToNextTimerAction) validateAction() error  { return nil }

// Automation binds triggers to actions within a timer list. Editing an
// automation replaces its triggers and actions wholesale.
type Automation struct {
	ID       string
	ListID   string
	Name     string
	Enabled  bool
	Order    int
	Triggers []Trigger
	Actions  []Action
}

// Validate checks an Automation and all of its triggers and actions, so that
// an invalid configuration is rejected at save time and never reachable at
// evaluation time.
func (a *Automation) Validate() error {
	if err := validateName(a.Name); err != nil {
		return err
	}
	if len(a.Triggers) == 0 {
		return ErrNoTriggers
	}
	if len(a.Actions) == 0 {
		return ErrNoActions
	}
	for _, t := range a.Triggers {
		if err := t.validateTrigger(); err != nil {
			return fmt.Errorf("trigger %s: %w", t.Kind(), err)
		}
	}
	for _, act := range a.Actions {
		if err := act.validateAction(); err != nil {
			return fmt.Errorf("action %s: %w", act.Kind(), err)
		}
	}
	return nil
}

// TriggerEnvelope is the wire format for a Trigger, used by the API and the
// stores. Only the fields required by Kind are populated.
type TriggerEnvelope struct {
	Kind        TriggerKind `json:"kind"`
	TimerName   string      `json:"timer_name,omitempty"`
	CounterName string      `json:"counter_name,omitempty"`
	Seconds     float64     `json:"seconds,omitempty"`
	Target      int         `json:"target,omitempty"`
}

// ActionEnvelope is the wire format for an Action.
type ActionEnvelope struct {
	Kind        ActionKind `json:"kind"`
	SoundID     string     `json:"sound_id,omitempty"`
	CounterName string     `json:"counter_name,omitempty"`
	Delta       int        `json:"delta,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// EncodeTrigger converts a Trigger into its wire envelope.
func EncodeTrigger(t Trigger) TriggerEnvelope {
	switch v := t.(type) {
	case TimerStartTrigger:
		return TriggerEnvelope{Kind: TriggerTimerStart, TimerName: v.TimerName}
	case TimerEndTrigger:
		return TriggerEnvelope{Kind: TriggerTimerEnd, TimerName: v.TimerName}
	case AnyTimerStartTrigger:
		return TriggerEnvelope{Kind: TriggerAnyTimerStart}
	case AnyTimerEndTrigger:
		return TriggerEnvelope{Kind: TriggerAnyTimerEnd}
	case TimeRemainingTrigger:
		return TriggerEnvelope{Kind: TriggerTimeRemaining, TimerName: v.TimerName, Seconds: v.Seconds}
	case TimeElapsedTrigger:
		return TriggerEnvelope{Kind: TriggerTimeElapsed, TimerName: v.TimerName, Seconds: v.Seconds}
	case IntervalTrigger:
		return TriggerEnvelope{Kind: TriggerInterval, Seconds: v.Seconds}
	case CounterValueTrigger:
		return TriggerEnvelope{Kind: TriggerCounterValue, CounterName: v.CounterName, Target: v.Target}
	default:
		return TriggerEnvelope{Kind: t.Kind()}
	}
}

// DecodeTrigger converts a wire envelope back into a Trigger.
func DecodeTrigger(e TriggerEnvelope) (Trigger, error) {
	switch e.Kind {
	case TriggerTimerStart:
		return TimerStartTrigger{TimerName: e.TimerName}, nil
	case TriggerTimerEnd:
		return TimerEndTrigger{TimerName: e.TimerName}, nil
	case TriggerAnyTimerStart:
		return AnyTimerStartTrigger{}, nil
	case TriggerAnyTimerEnd:
		return AnyTimerEndTrigger{}, nil
	case TriggerTimeRemaining:
		return TimeRemainingTrigger{TimerName: e.TimerName, Seconds: e.Seconds}, nil
	case TriggerTimeElapsed:
		return TimeElapsedTrigger{TimerName: e.TimerName, Seconds: e.Seconds}, nil
	case TriggerInterval:
		return IntervalTrigger{Seconds: e.Seconds}, nil
	case TriggerCounterValue:
		return CounterValueTrigger{CounterName: e.CounterName, Target: e.Target}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTriggerKind, e.Kind)
	}
}

// EncodeAction converts an Action into its wire envelope.
func EncodeAction(a Action) ActionEnvelope {
	switch v := a.(type) {
	case PlaySoundAction:
		return ActionEnvelope{Kind: ActionPlaySound, SoundID: v.SoundID}
	case ModifyCounterAction:
		return ActionEnvelope{Kind: ActionModifyCounter, CounterName: v.CounterName, Delta: v.Delta}
	case ShowNotificationAction:
		return ActionEnvelope{Kind: ActionShowNotification, Message: v.Message}
	case PauseActiveTimerAction:
		return ActionEnvelope{Kind: ActionPauseActiveTimer}
	case SkipToNextTimerAction:
		return ActionEnvelope{Kind: ActionSkipToNextTimer}
	default:
		return ActionEnvelope{Kind: a.Kind()}
	}
}

// DecodeAction converts a wire envelope back into an Action.
func DecodeAction(e ActionEnvelope) (Action, error) {
	switch e.Kind {
	case ActionPlaySound:
		return PlaySoundAction{SoundID: e.SoundID}, nil
	case ActionModifyCounter:
		return ModifyCounterAction{CounterName: e.CounterName, Delta: e.Delta}, nil
	case ActionShowNotification:
		return ShowNotificationAction{Message: e.Message}, nil
	case ActionPauseActiveTimer:
		return PauseActiveTimerAction{}, nil
	case ActionSkipToNextTimer:
		return SkipToNextTimerAction{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionKind, e.Kind)
	}
}

// automationJSON is the wire format for an Automation.
type automationJSON struct {
	ID       string            `json:"id"`
	ListID   string            `json:"list_id"`
	Name     string            `json:"name"`
	Enabled  bool              `json:"enabled"`
	Order    int               `json:"order"`
	Triggers []TriggerEnvelope `json:"triggers"`
	Actions  []ActionEnvelope  `json:"actions"`
}

// MarshalJSON implements json.Marshaler using the envelope wire format.
func (a Automation) MarshalJSON() ([]byte, error) {
	out := automationJSON{
		ID:      a.ID,
		ListID:  a.ListID,
		Name:    a.Name,
		Enabled: a.Enabled,
		Order:   a.Order,
	}
	for _, t := range a.Triggers {
		out.Triggers = append(out.Triggers, EncodeTrigger(t))
	}
	for _, act := range a.Actions {
		out.Actions = append(out.Actions, EncodeAction(act))
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler using the envelope wire format.
func (a *Automation) UnmarshalJSON(data []byte) error {
	var in automationJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	a.ID = in.ID
	a.ListID = in.ListID
	a.Name = in.Name
	a.Enabled = in.Enabled
	a.Order = in.Order
	a.Triggers = nil
	a.Actions = nil
	for _, e := range in.Triggers {
		t, err := DecodeTrigger(e)
		if err != nil {
			return err
		}
		a.Triggers = append(a.Triggers, t)
	}
	for _, e := range in.Actions {
		act, err := DecodeAction(e)
		if err != nil {
			return err
		}
		a.Actions = append(a.Actions, act)
	}
	return nil
}
