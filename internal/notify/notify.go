// Package notify defines the playback and notification collaborators used by
// the sequencer and the automation engine.
//
// Both collaborators are fire-and-forget from the engine's point of view:
// failures are logged by the caller and never interrupt trigger evaluation.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultCompletionSound is the sound played when a timer finishes.
const DefaultCompletionSound = "timer_complete"

// Player plays a sound identified by id.
type Player interface {
	Play(ctx context.Context, soundID string) error
}

// Notifier shows a user-facing message.
type Notifier interface {
	Show(ctx context.Context, message string) error
}

// LogPlayer is the default Player; it records playback requests in the log.
// Real audio output lives outside this service.
type LogPlayer struct{}

// Play logs the playback request.
func (LogPlayer) Play(ctx context.Context, soundID string) error {
	slog.Info("Playing sound", "sound_id", soundID)
	return nil
}

// LogNotifier is the default Notifier; it records messages in the log.
type LogNotifier struct{}

// Show logs the notification message.
func (LogNotifier) Show(ctx context.Context, message string) error {
	slog.Info("Showing notification", "message", message)
	return nil
}

// MockPlayer records played sound ids for tests.
type MockPlayer struct {
	mu     sync.Mutex
	sounds []string
}

// NewMockPlayer creates an empty MockPlayer.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

func (m *MockPlayer) Play(ctx context.Context, soundID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sounds = append(m.sounds, soundID)
	return nil
}

// Played returns a copy of the recorded sound ids.
func (m *MockPlayer) Played() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sounds...)
}

// MockNotifier records shown messages for tests.
type MockNotifier struct {
	mu       sync.Mutex
	messages []string
}

// NewMockNotifier creates an empty MockNotifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Show(ctx context.Context, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	return nil
}

// Shown returns a copy of the recorded messages.
func (m *MockNotifier) Shown() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}
