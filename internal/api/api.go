// Package api provides HTTP handlers and the main API server logic for TimerPipe.
//
// It exposes RESTful endpoints for managing timer lists, timers, counters,
// automations, and schedules, plus run control over the active sequence. The
// API wires together the store, sequencer, engine, and scheduler modules.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BTreeMap/TimerPipe/internal/engine"
	"github.com/BTreeMap/TimerPipe/internal/metrics"
	"github.com/BTreeMap/TimerPipe/internal/models"
	"github.com/BTreeMap/TimerPipe/internal/notify"
	"github.com/BTreeMap/TimerPipe/internal/scheduler"
	"github.com/BTreeMap/TimerPipe/internal/sequencer"
	"github.com/BTreeMap/TimerPipe/internal/store"
)

// DefaultAddr is the address the API server listens on when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr      string
	Heartbeat time.Duration
	Player    notify.Player
	Notifier  notify.Notifier
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithHeartbeat sets the sequencer tick interval.
func WithHeartbeat(d time.Duration) Option {
	return func(o *Opts) { o.Heartbeat = d }
}

// WithPlayer sets the sound playback collaborator.
func WithPlayer(p notify.Player) Option {
	return func(o *Opts) { o.Player = p }
}

// WithNotifier sets the notification collaborator.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// Server hosts the TimerPipe HTTP API and owns the run-time collaborators.
type Server struct {
	addr string
	st   store.Store
	seq  *sequencer.Sequencer
	eng  *engine.Engine
	cron *scheduler.CronScheduler

	mu          sync.Mutex
	cronEntries map[string]cron.EntryID // schedule id -> cron entry
}

// NewServer creates a fully wired Server on top of the given store.
func NewServer(st store.Store, opts ...Option) *Server {
	cfg := Opts{
		Addr:      DefaultAddr,
		Heartbeat: sequencer.DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Player == nil {
		cfg.Player = notify.LogPlayer{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.LogNotifier{}
	}

	metrics.Init()

	tasks := scheduler.NewTaskScheduler()
	eng := engine.New(st, tasks, engine.WithPlayer(cfg.Player), engine.WithNotifier(cfg.Notifier))
	seq := sequencer.New(sequencer.WithHeartbeat(cfg.Heartbeat), sequencer.WithPlayer(cfg.Player))
	seq.AddListener(eng)
	eng.SetControl(seq)

	slog.Debug("Creating API server", "addr", cfg.Addr, "heartbeat", cfg.Heartbeat)
	return &Server{
		addr:        cfg.Addr,
		st:          st,
		seq:         seq,
		eng:         eng,
		cron:        scheduler.NewCronScheduler(),
		cronEntries: make(map[string]cron.EntryID),
	}
}

// Handler returns the routing mux for the API. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/lists", s.listsHandler)
	mux.HandleFunc("/lists/", s.listsHandler)
	mux.HandleFunc("/run", s.runStatusHandler)
	mux.HandleFunc("/schedules", s.schedulesHandler)
	mux.HandleFunc("/schedules/", s.schedulesHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Run re-arms stored schedules and serves the API until the listener fails.
func (s *Server) Run() error {
	if err := s.armStoredSchedules(); err != nil {
		slog.Error("Server.Run: failed to arm stored schedules", "error", err)
		return err
	}
	slog.Info("TimerPipe API running", "addr", s.addr)
	if err := http.ListenAndServe(s.addr, s.Handler()); err != nil {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Close stops the sequencer, cron jobs, and the store.
func (s *Server) Close() error {
	s.seq.Shutdown()
	s.eng.OnStopped()
	s.cron.Stop()
	return s.st.Close()
}

// armStoredSchedules registers a cron job for every persisted schedule.
func (s *Server) armStoredSchedules() error {
	schedules, err := s.st.ListSchedules()
	if err != nil {
		return fmt.Errorf("failed to list schedules: %w", err)
	}
	for _, sched := range schedules {
		if err := s.armSchedule(sched.ID, sched.ListID, sched.Cron, sched.StartIndex); err != nil {
			slog.Error("Server.armStoredSchedules: skipping invalid schedule", "scheduleID", sched.ID, "error", err)
			continue
		}
	}
	slog.Info("Stored schedules armed", "count", len(schedules))
	return nil
}

// armSchedule registers one cron job that starts listID at startIndex.
func (s *Server) armSchedule(scheduleID, listID, expr string, startIndex int) error {
	entryID, err := s.cron.AddJob(expr, func() {
		slog.Info("Schedule fired", "scheduleID", scheduleID, "listID", listID)
		if err := s.startList(listID, startIndex); err != nil {
			slog.Error("Scheduled start failed", "scheduleID", scheduleID, "listID", listID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register cron job: %w", err)
	}
	s.mu.Lock()
	s.cronEntries[scheduleID] = entryID
	s.mu.Unlock()
	return nil
}

// disarmSchedule removes the cron job for a schedule, if one is registered.
func (s *Server) disarmSchedule(scheduleID string) {
	s.mu.Lock()
	entryID, ok := s.cronEntries[scheduleID]
	if ok {
		delete(s.cronEntries, scheduleID)
	}
	s.mu.Unlock()
	if ok {
		s.cron.Remove(entryID)
	}
}

// startList loads the list's timers into the sequencer, binds its automations,
// and starts the countdown at startIndex.
func (s *Server) startList(listID string, startIndex int) error {
	list, err := s.st.GetTimerList(listID)
	if err != nil {
		return fmt.Errorf("failed to load list %s: %w", listID, err)
	}
	if list == nil {
		return fmt.Errorf("list %s: %w", listID, models.ErrNotFound)
	}
	timers, err := s.st.ListTimers(listID)
	if err != nil {
		return fmt.Errorf("failed to load timers for list %s: %w", listID, err)
	}
	if len(timers) == 0 {
		return fmt.Errorf("list %s has no timers", listID)
	}
	if startIndex < 0 || startIndex >= len(timers) {
		return fmt.Errorf("start index %d out of range for list %s", startIndex, listID)
	}
	// Discard scheduler tasks and pause bookkeeping from whatever run this
	// one replaces, including a run left paused.
	s.eng.OnStopped()
	if err := s.eng.Bind(listID); err != nil {
		return err
	}
	s.seq.Load(listID, list.Autoplay, timers)
	s.seq.Start(startIndex)
	return nil
}
