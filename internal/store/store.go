// Package store provides storage backends for TimerPipe.
//
// It includes an in-memory store plus SQLite and PostgreSQL backends for
// timer lists, timer definitions, counters, automations, and schedules.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/BTreeMap/TimerPipe/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the store DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the store DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// Store defines persistence for timer lists and their children. Get methods
// return (nil, nil) when the entity does not exist. Deleting a timer list
// cascades to its timers, counters, automations, and schedules; deleting an
// automation cascades to its triggers and actions.
type Store interface {
	CreateTimerList(l models.TimerList) error
	GetTimerList(id string) (*models.TimerList, error)
	ListTimerLists() ([]models.TimerList, error)
	DeleteTimerList(id string) error

	CreateTimer(t models.TimerDefinition) error
	ListTimers(listID string) ([]models.TimerDefinition, error)
	DeleteTimer(id string) error

	CreateCounter(c models.Counter) error
	GetCounter(id string) (*models.Counter, error)
	ListCounters(listID string) ([]models.Counter, error)
	UpdateCounterValue(id string, value int) error
	DeleteCounter(id string) error

	CreateAutomation(a models.Automation) error
	ListAutomations(listID string) ([]models.Automation, error)
	UpdateAutomation(a models.Automation) error
	DeleteAutomation(id string) error

	CreateSchedule(s models.Schedule) error
	ListSchedules() ([]models.Schedule, error)
	DeleteSchedule(id string) error

	Close() error
}

// InMemoryStore is a map-backed Store used when no DSN is configured and in
// tests.
type InMemoryStore struct {
	mu          sync.RWMutex
	lists       map[string]models.TimerList
	timers      map[string]models.TimerDefinition
	counters    map[string]models.Counter
	automations map[string]models.Automation
	schedules   map[string]models.Schedule
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		lists:       make(map[string]models.TimerList),
		timers:      make(map[string]models.TimerDefinition),
		counters:    make(map[string]models.Counter),
		automations: make(map[string]models.Automation),
		schedules:   make(map[string]models.Schedule),
	}
}

func (s *InMemoryStore) CreateTimerList(l models.TimerList) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[l.ID] = l
	return nil
}

func (s *InMemoryStore) GetTimerList(id string) (*models.TimerList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (s *InMemoryStore) ListTimerLists() ([]models.TimerList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TimerList, 0, len(s.lists))
	for _, l := range s.lists {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteTimerList removes a list and cascades to every child entity.
func (s *InMemoryStore) DeleteTimerList(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lists, id)
	for tid, t := range s.timers {
		if t.ListID == id {
			delete(s.timers, tid)
		}
	}
	for cid, c := range s.counters {
		if c.ListID == id {
			delete(s.counters, cid)
		}
	}
	for aid, a := range s.automations {
		if a.ListID == id {
			delete(s.automations, aid)
		}
	}
	for sid, sc := range s.schedules {
		if sc.ListID == id {
			delete(s.schedules, sid)
		}
	}
	return nil
}

func (s *InMemoryStore) CreateTimer(t models.TimerDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.timers {
		if existing.ListID == t.ListID && existing.Order == t.Order {
			return fmt.Errorf("timer order %d already used in list %s", t.Order, t.ListID)
		}
	}
	s.timers[t.ID] = t
	return nil
}

func (s *InMemoryStore) ListTimers(listID string) ([]models.TimerDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TimerDefinition
	for _, t := range s.timers {
		if t.ListID == listID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *InMemoryStore) DeleteTimer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, id)
	return nil
}

func (s *InMemoryStore) CreateCounter(c models.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[c.ID] = c
	return nil
}

func (s *InMemoryStore) GetCounter(id string) (*models.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counters[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) ListCounters(listID string) ([]models.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Counter
	for _, c := range s.counters {
		if c.ListID == listID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *InMemoryStore) UpdateCounterValue(id string, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[id]
	if !ok {
		return fmt.Errorf("counter %s not found", id)
	}
	c.Value = value
	s.counters[id] = c
	return nil
}

func (s *InMemoryStore) DeleteCounter(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, id)
	return nil
}

func (s *InMemoryStore) CreateAutomation(a models.Automation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.automations[a.ID] = a
	return nil
}

func (s *InMemoryStore) ListAutomations(listID string) ([]models.Automation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Automation
	for _, a := range s.automations {
		if a.ListID == listID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// UpdateAutomation replaces the stored automation, including its triggers and
// actions, wholesale.
func (s *InMemoryStore) UpdateAutomation(a models.Automation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.automations[a.ID]; !ok {
		return fmt.Errorf("automation %s not found", a.ID)
	}
	s.automations[a.ID] = a
	return nil
}

func (s *InMemoryStore) DeleteAutomation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.automations, id)
	return nil
}

func (s *InMemoryStore) CreateSchedule(sc models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sc.ID] = sc
	return nil
}

func (s *InMemoryStore) ListSchedules() ([]models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Schedule, 0, len(s.schedules))
	for _, sc := range s.schedules {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) DeleteSchedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, id)
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
