// Package store provides storage backends for TimerPipe.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/TimerPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateTimerList(l models.TimerList) error {
	_, err := s.db.Exec(`INSERT INTO timer_lists (id, name, autoplay, created_at) VALUES ($1, $2, $3, $4)`,
		l.ID, l.Name, l.Autoplay, l.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateTimerList failed", "error", err, "listID", l.ID)
		return fmt.Errorf("failed to insert timer list %s: %w", l.ID, err)
	}
	slog.Debug("PostgresStore CreateTimerList succeeded", "listID", l.ID, "name", l.Name)
	return nil
}

func (s *PostgresStore) GetTimerList(id string) (*models.TimerList, error) {
	var l models.TimerList
	err := s.db.QueryRow(`SELECT id, name, autoplay, created_at FROM timer_lists WHERE id = $1`, id).
		Scan(&l.ID, &l.Name, &l.Autoplay, &l.CreatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetTimerList not found", "listID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetTimerList failed", "error", err, "listID", id)
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) ListTimerLists() ([]models.TimerList, error) {
	rows, err := s.db.Query(`SELECT id, name, autoplay, created_at FROM timer_lists ORDER BY created_at`)
	if err != nil {
		slog.Error("PostgresStore ListTimerLists query failed", "error", err)
		return nil, fmt.Errorf("failed to query timer lists: %w", err)
	}
	defer rows.Close()

	var lists []models.TimerList
	for rows.Next() {
		var l models.TimerList
		if err := rows.Scan(&l.ID, &l.Name, &l.Autoplay, &l.CreatedAt); err != nil {
			slog.Error("PostgresStore ListTimerLists scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan timer list row: %w", err)
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slog.Debug("PostgresStore ListTimerLists succeeded", "count", len(lists))
	return lists, nil
}

func (s *PostgresStore) DeleteTimerList(id string) error {
	_, err := s.db.Exec(`DELETE FROM timer_lists WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteTimerList failed", "error", err, "listID", id)
		return fmt.Errorf("failed to delete timer list %s: %w", id, err)
	}
	slog.Debug("PostgresStore DeleteTimerList succeeded", "listID", id)
	return nil
}

func (s *PostgresStore) CreateTimer(t models.TimerDefinition) error {
	_, err := s.db.Exec(`INSERT INTO timer_definitions (id, list_id, name, seconds, position) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.ListID, t.Name, t.Seconds, t.Order)
	if err != nil {
		slog.Error("PostgresStore CreateTimer failed", "error", err, "timerID", t.ID)
		return fmt.Errorf("failed to insert timer %s: %w", t.ID, err)
	}
	slog.Debug("PostgresStore CreateTimer succeeded", "timerID", t.ID, "name", t.Name)
	return nil
}

func (s *PostgresStore) ListTimers(listID string) ([]models.TimerDefinition, error) {
	rows, err := s.db.Query(`SELECT id, list_id, name, seconds, position FROM timer_definitions WHERE list_id = $1 ORDER BY position`, listID)
	if err != nil {
		slog.Error("PostgresStore ListTimers query failed", "error", err, "listID", listID)
		return nil, fmt.Errorf("failed to query timers: %w", err)
	}
	defer rows.Close()

	var timers []models.TimerDefinition
	for rows.Next() {
		var t models.TimerDefinition
		if err := rows.Scan(&t.ID, &t.ListID, &t.Name, &t.Seconds, &t.Order); err != nil {
			slog.Error("PostgresStore ListTimers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan timer row: %w", err)
		}
		timers = append(timers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slog.Debug("PostgresStore ListTimers succeeded", "listID", listID, "count", len(timers))
	return timers, nil
}

func (s *PostgresStore) DeleteTimer(id string) error {
	_, err := s.db.Exec(`DELETE FROM timer_definitions WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteTimer failed", "error", err, "timerID", id)
		return err
	}
	slog.Debug("PostgresStore DeleteTimer succeeded", "timerID", id)
	return nil
}

func (s *PostgresStore) CreateCounter(c models.Counter) error {
	_, err := s.db.Exec(`INSERT INTO counters (id, list_id, name, value, initial_value, min_value, max_value, position) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.ListID, c.Name, c.Value, c.InitialValue, nullableBound(c.MinValue), nullableBound(c.MaxValue), c.Order)
	if err != nil {
		slog.Error("PostgresStore CreateCounter failed", "error", err, "counterID", c.ID)
		return fmt.Errorf("failed to insert counter %s: %w", c.ID, err)
	}
	slog.Debug("PostgresStore CreateCounter succeeded", "counterID", c.ID, "name", c.Name)
	return nil
}

func (s *PostgresStore) GetCounter(id string) (*models.Counter, error) {
	rows, err := s.db.Query(`SELECT id, list_id, name, value, initial_value, min_value, max_value, position FROM counters WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore GetCounter query failed", "error", err, "counterID", id)
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		slog.Debug("PostgresStore GetCounter not found", "counterID", id)
		return nil, rows.Err()
	}
	c, err := scanCounter(rows)
	if err != nil {
		slog.Error("PostgresStore GetCounter scan failed", "error", err, "counterID", id)
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) ListCounters(listID string) ([]models.Counter, error) {
	rows, err := s.db.Query(`SELECT id, list_id, name, value, initial_value, min_value, max_value, position FROM counters WHERE list_id = $1 ORDER BY position`, listID)
	if err != nil {
		slog.Error("PostgresStore ListCounters query failed", "error", err, "listID", listID)
		return nil, fmt.Errorf("failed to query counters: %w", err)
	}
	defer rows.Close()

	var counters []models.Counter
	for rows.Next() {
		c, err := scanCounter(rows)
		if err != nil {
			slog.Error("PostgresStore ListCounters scan failed", "error", err)
			return nil, err
		}
		counters = append(counters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slog.Debug("PostgresStore ListCounters succeeded", "listID", listID, "count", len(counters))
	return counters, nil
}

func (s *PostgresStore) UpdateCounterValue(id string, value int) error {
	res, err := s.db.Exec(`UPDATE counters SET value = $1 WHERE id = $2`, value, id)
	if err != nil {
		slog.Error("PostgresStore UpdateCounterValue failed", "error", err, "counterID", id)
		return fmt.Errorf("failed to update counter %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("counter %s not found", id)
	}
	slog.Debug("PostgresStore UpdateCounterValue succeeded", "counterID", id, "value", value)
	return nil
}

func (s *PostgresStore) DeleteCounter(id string) error {
	_, err := s.db.Exec(`DELETE FROM counters WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteCounter failed", "error", err, "counterID", id)
		return err
	}
	slog.Debug("PostgresStore DeleteCounter succeeded", "counterID", id)
	return nil
}

func (s *PostgresStore) CreateAutomation(a models.Automation) error {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("PostgresStore CreateAutomation begin failed", "error", err, "automationID", a.ID)
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO automations (id, list_id, name, enabled, position) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.ListID, a.Name, a.Enabled, a.Order)
	if err != nil {
		slog.Error("PostgresStore CreateAutomation failed", "error", err, "automationID", a.ID)
		return fmt.Errorf("failed to insert automation %s: %w", a.ID, err)
	}
	if err := insertAutomationChildrenPostgres(tx, a); err != nil {
		slog.Error("PostgresStore CreateAutomation children failed", "error", err, "automationID", a.ID)
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("PostgresStore CreateAutomation succeeded", "automationID", a.ID, "triggers", len(a.Triggers), "actions", len(a.Actions))
	return nil
}

func (s *PostgresStore) ListAutomations(listID string) ([]models.Automation, error) {
	rows, err := s.db.Query(`SELECT id, list_id, name, enabled, position FROM automations WHERE list_id = $1 ORDER BY position`, listID)
	if err != nil {
		slog.Error("PostgresStore ListAutomations query failed", "error", err, "listID", listID)
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}
	defer rows.Close()

	var automations []models.Automation
	for rows.Next() {
		var a models.Automation
		if err := rows.Scan(&a.ID, &a.ListID, &a.Name, &a.Enabled, &a.Order); err != nil {
			slog.Error("PostgresStore ListAutomations scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan automation row: %w", err)
		}
		automations = append(automations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range automations {
		if err := s.loadAutomationChildren(&automations[i]); err != nil {
			return nil, err
		}
	}
	slog.Debug("PostgresStore ListAutomations succeeded", "listID", listID, "count", len(automations))
	return automations, nil
}

func (s *PostgresStore) UpdateAutomation(a models.Automation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE automations SET name = $1, enabled = $2, position = $3 WHERE id = $4`,
		a.Name, a.Enabled, a.Order, a.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateAutomation failed", "error", err, "automationID", a.ID)
		return fmt.Errorf("failed to update automation %s: %w", a.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("automation %s not found", a.ID)
	}
	if _, err := tx.Exec(`DELETE FROM triggers WHERE automation_id = $1`, a.ID); err != nil {
		return fmt.Errorf("failed to clear triggers for %s: %w", a.ID, err)
	}
	if _, err := tx.Exec(`DELETE FROM actions WHERE automation_id = $1`, a.ID); err != nil {
		return fmt.Errorf("failed to clear actions for %s: %w", a.ID, err)
	}
	if err := insertAutomationChildrenPostgres(tx, a); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("PostgresStore UpdateAutomation succeeded", "automationID", a.ID)
	return nil
}

func (s *PostgresStore) DeleteAutomation(id string) error {
	_, err := s.db.Exec(`DELETE FROM automations WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteAutomation failed", "error", err, "automationID", id)
		return err
	}
	slog.Debug("PostgresStore DeleteAutomation succeeded", "automationID", id)
	return nil
}

func (s *PostgresStore) CreateSchedule(sc models.Schedule) error {
	_, err := s.db.Exec(`INSERT INTO schedules (id, list_id, cron_expr, start_index) VALUES ($1, $2, $3, $4)`,
		sc.ID, sc.ListID, sc.Cron, sc.StartIndex)
	if err != nil {
		slog.Error("PostgresStore CreateSchedule failed", "error", err, "scheduleID", sc.ID)
		return fmt.Errorf("failed to insert schedule %s: %w", sc.ID, err)
	}
	slog.Debug("PostgresStore CreateSchedule succeeded", "scheduleID", sc.ID, "cron", sc.Cron)
	return nil
}

func (s *PostgresStore) ListSchedules() ([]models.Schedule, error) {
	rows, err := s.db.Query(`SELECT id, list_id, cron_expr, start_index FROM schedules ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListSchedules query failed", "error", err)
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		var sc models.Schedule
		if err := rows.Scan(&sc.ID, &sc.ListID, &sc.Cron, &sc.StartIndex); err != nil {
			slog.Error("PostgresStore ListSchedules scan failed", "error", err)
			return nil, err
		}
		schedules = append(schedules, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slog.Debug("PostgresStore ListSchedules succeeded", "count", len(schedules))
	return schedules, nil
}

func (s *PostgresStore) DeleteSchedule(id string) error {
	_, err := s.db.Exec(`DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteSchedule failed", "error", err, "scheduleID", id)
		return err
	}
	slog.Debug("PostgresStore DeleteSchedule succeeded", "scheduleID", id)
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}

func (s *PostgresStore) loadAutomationChildren(a *models.Automation) error {
	trigRows, err := s.db.Query(`SELECT kind, timer_name, counter_name, seconds, target FROM triggers WHERE automation_id = $1 ORDER BY id`, a.ID)
	if err != nil {
		return fmt.Errorf("failed to query triggers for %s: %w", a.ID, err)
	}
	defer trigRows.Close()
	for trigRows.Next() {
		e, err := scanTrigger(trigRows)
		if err != nil {
			return err
		}
		t, err := models.DecodeTrigger(e)
		if err != nil {
			slog.Error("PostgresStore skipping undecodable trigger", "error", err, "automationID", a.ID)
			continue
		}
		a.Triggers = append(a.Triggers, t)
	}
	if err := trigRows.Err(); err != nil {
		return err
	}

	actRows, err := s.db.Query(`SELECT kind, sound_id, counter_name, delta, message FROM actions WHERE automation_id = $1 ORDER BY id`, a.ID)
	if err != nil {
		return fmt.Errorf("failed to query actions for %s: %w", a.ID, err)
	}
	defer actRows.Close()
	for actRows.Next() {
		e, err := scanAction(actRows)
		if err != nil {
			return err
		}
		act, err := models.DecodeAction(e)
		if err != nil {
			slog.Error("PostgresStore skipping undecodable action", "error", err, "automationID", a.ID)
			continue
		}
		a.Actions = append(a.Actions, act)
	}
	return actRows.Err()
}

func insertAutomationChildrenPostgres(tx *sql.Tx, a models.Automation) error {
	for _, t := range a.Triggers {
		e := models.EncodeTrigger(t)
		_, err := tx.Exec(`INSERT INTO triggers (automation_id, kind, timer_name, counter_name, seconds, target) VALUES ($1, $2, $3, $4, $5, $6)`,
			a.ID, string(e.Kind), nilIfEmpty(e.TimerName), nilIfEmpty(e.CounterName), e.Seconds, e.Target)
		if err != nil {
			return fmt.Errorf("failed to insert trigger for %s: %w", a.ID, err)
		}
	}
	for _, act := range a.Actions {
		e := models.EncodeAction(act)
		_, err := tx.Exec(`INSERT INTO actions (automation_id, kind, sound_id, counter_name, delta, message) VALUES ($1, $2, $3, $4, $5, $6)`,
			a.ID, string(e.Kind), nilIfEmpty(e.SoundID), nilIfEmpty(e.CounterName), e.Delta, nilIfEmpty(e.Message))
		if err != nil {
			return fmt.Errorf("failed to insert action for %s: %w", a.ID, err)
		}
	}
	return nil
}
