// Package store provides storage backends for TimerPipe.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/BTreeMap/TimerPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Cascade deletes rely on foreign key enforcement, which SQLite leaves
	// off unless the connection asks for it.
	if !strings.Contains(dsn, "_foreign_keys") {
		if strings.Contains(dsn, "?") {
			dsn += "&_foreign_keys=on"
		} else {
			dsn += "?_foreign_keys=on"
		}
	}

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateTimerList(l models.TimerList) error {
	_, err := s.db.Exec(`INSERT INTO timer_lists (id, name, autoplay, created_at) VALUES (?, ?, ?, ?)`,
		l.ID, l.Name, l.Autoplay, l.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateTimerList failed", "error", err, "listID", l.ID)
		return fmt.Errorf("failed to insert timer list %s: %w", l.ID, err)
	}
	slog.Debug("SQLiteStore CreateTimerList succeeded", "listID", l.ID, "name", l.Name)
	return nil
}

func (s *SQLiteStore) GetTimerList(id string) (*models.TimerList, error) {
	var l models.TimerList
	err := s.db.QueryRow(`SELECT id, name, autoplay, created_at FROM timer_lists WHERE id = ?`, id).
		Scan(&l.ID, &l.Name, &l.Autoplay, &l.CreatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetTimerList not found", "listID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetTimerList failed", "error", err, "listID", id)
		return nil, err
	}
	return &l, nil
}

func (s *SQLiteStore) ListTimerLists() ([]models.TimerList, error) {
	rows, err := s.db.Query(`SELECT id, name, autoplay, created_at FROM timer_lists ORDER BY created_at`)
	if err != nil {
		slog.Error("SQLiteStore ListTimerLists query failed", "error", err)
		return nil, fmt.Errorf("failed to query timer lists: %w", err)
	}
	defer rows.Close()

	var lists []models.TimerList
	for rows.Next() {
		var l models.TimerList
		if err := rows.Scan(&l.ID, &l.Name, &l.Autoplay, &l.CreatedAt); err != nil {
			slog.Error("SQLiteStore ListTimerLists scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan timer list row: %w", err)
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListTimerLists rows iteration failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore ListTimerLists succeeded", "count", len(lists))
	return lists, nil
}

// DeleteTimerList removes a list; child timers, counters, automations (with
// their triggers and actions), and schedules go with it via ON DELETE CASCADE.
func (s *SQLiteStore) DeleteTimerList(id string) error {
	_, err := s.db.Exec(`DELETE FROM timer_lists WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteTimerList failed", "error", err, "listID", id)
		return fmt.Errorf("failed to delete timer list %s: %w", id, err)
	}
	slog.Debug("SQLiteStore DeleteTimerList succeeded", "listID", id)
	return nil
}

func (s *SQLiteStore) CreateTimer(t models.TimerDefinition) error {
	_, err := s.db.Exec(`INSERT INTO timer_definitions (id, list_id, name, seconds, position) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.ListID, t.Name, t.Seconds, t.Order)
	if err != nil {
		slog.Error("SQLiteStore CreateTimer failed", "error", err, "timerID", t.ID)
		return fmt.Errorf("failed to insert timer %s: %w", t.ID, err)
	}
	slog.Debug("SQLiteStore CreateTimer succeeded", "timerID", t.ID, "name", t.Name, "order", t.Order)
	return nil
}

func (s *SQLiteStore) ListTimers(listID string) ([]models.TimerDefinition, error) {
	rows, err := s.db.Query(`SELECT id, list_id, name, seconds, position FROM timer_definitions WHERE list_id = ? ORDER BY position`, listID)
	if err != nil {
		slog.Error("SQLiteStore ListTimers query failed", "error", err, "listID", listID)
		return nil, fmt.Errorf("failed to query timers: %w", err)
	}
	defer rows.Close()

	var timers []models.TimerDefinition
	for rows.Next() {
		var t models.TimerDefinition
		if err := rows.Scan(&t.ID, &t.ListID, &t.Name, &t.Seconds, &t.Order); err != nil {
			slog.Error("SQLiteStore ListTimers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan timer row: %w", err)
		}
		timers = append(timers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slog.Debug("SQLiteStore ListTimers succeeded", "listID", listID, "count", len(timers))
	return timers, nil
}

func (s *SQLiteStore) DeleteTimer(id string) error {
	_, err := s.db.Exec(`DELETE FROM timer_definitions WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteTimer failed", "error", err, "timerID", id)
		return err
	}
	slog.Debug("SQLiteStore DeleteTimer succeeded", "timerID", id)
	return nil
}

func (s *SQLiteStore) CreateCounter(c models.Counter) error {
	_, err := s.db.Exec(`INSERT INTO counters (id, list_id, name, value, initial_value, min_value, max_value, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ListID, c.Name, c.Value, c.InitialValue, nullableBound(c.MinValue), nullableBound(c.MaxValue), c.Order)
	if err != nil {
		slog.Error("SQLiteStore CreateCounter failed", "error", err, "counterID", c.ID)
		return fmt.Errorf("failed to insert counter %s: %w", c.ID, err)
	}
	slog.Debug("SQLiteStore CreateCounter succeeded", "counterID", c.ID, "name", c.Name)
	return nil
}

func (s *SQLiteStore) GetCounter(id string) (*models.Counter, error) {
	rows, err := s.db.Query(`SELECT id, list_id, name, value, initial_value, min_value, max_value, position FROM counters WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore GetCounter query failed", "error", err, "counterID", id)
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		slog.Debug("SQLiteStore GetCounter not found", "counterID", id)
		return nil, rows.Err()
	}
	c, err := scanCounter(rows)
	if err != nil {
		slog.Error("SQLiteStore GetCounter scan failed", "error", err, "counterID", id)
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) ListCounters(listID string) ([]models.Counter, error) {
	rows, err := s.db.Query(`SELECT id, list_id, name, value, initial_value, min_value, max_value, position FROM counters WHERE list_id = ? ORDER BY position`, listID)
	if err != nil {
		slog.Error("SQLiteStore ListCounters query failed", "error", err, "listID", listID)
		return nil, fmt.Errorf("failed to query counters: %w", err)
	}
	defer rows.Close()

	var counters []models.Counter
	for rows.Next() {
		c, err := scanCounter(rows)
		if err != nil {
			slog.Error("SQLiteStore ListCounters scan failed", "error", err)
			return nil, err
		}
		counters = append(counters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slog.Debug("SQLiteStore ListCounters succeeded", "listID", listID, "count", len(counters))
	return counters, nil
}

func (s *SQLiteStore) UpdateCounterValue(id string, value int) error {
	res, err := s.db.Exec(`UPDATE counters SET value = ? WHERE id = ?`, value, id)
	if err != nil {
		slog.Error("SQLiteStore UpdateCounterValue failed", "error", err, "counterID", id)
		return fmt.Errorf("failed to update counter %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("counter %s not found", id)
	}
	slog.Debug("SQLiteStore UpdateCounterValue succeeded", "counterID", id, "value", value)
	return nil
}

func (s *SQLiteStore) DeleteCounter(id string) error {
	_, err := s.db.Exec(`DELETE FROM counters WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteCounter failed", "error", err, "counterID", id)
		return err
	}
	slog.Debug("SQLiteStore DeleteCounter succeeded", "counterID", id)
	return nil
}

func (s *SQLiteStore) CreateAutomation(a models.Automation) error {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("SQLiteStore CreateAutomation begin failed", "error", err, "automationID", a.ID)
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO automations (id, list_id, name, enabled, position) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.ListID, a.Name, a.Enabled, a.Order)
	if err != nil {
		slog.Error("SQLiteStore CreateAutomation failed", "error", err, "automationID", a.ID)
		return fmt.Errorf("failed to insert automation %s: %w", a.ID, err)
	}
	if err := insertAutomationChildrenSQLite(tx, a); err != nil {
		slog.Error("SQLiteStore CreateAutomation children failed", "error", err, "automationID", a.ID)
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("SQLiteStore CreateAutomation succeeded", "automationID", a.ID, "triggers", len(a.Triggers), "actions", len(a.Actions))
	return nil
}

func (s *SQLiteStore) ListAutomations(listID string) ([]models.Automation, error) {
	rows, err := s.db.Query(`SELECT id, list_id, name, enabled, position FROM automations WHERE list_id = ? ORDER BY position`, listID)
	if err != nil {
		slog.Error("SQLiteStore ListAutomations query failed", "error", err, "listID", listID)
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}
	defer rows.Close()

	var automations []models.Automation
	for rows.Next() {
		var a models.Automation
		if err := rows.Scan(&a.ID, &a.ListID, &a.Name, &a.Enabled, &a.Order); err != nil {
			slog.Error("SQLiteStore ListAutomations scan failed", "error", err)
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
	slog.Debug("SQLiteStore ListAutomations succeeded", "listID", listID, "count", len(automations))
	return automations, nil
}

// UpdateAutomation rewrites the automation row and recreates its triggers and
// actions from scratch; edits never patch children in place.
func (s *SQLiteStore) UpdateAutomation(a models.Automation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE automations SET name = ?, enabled = ?, position = ? WHERE id = ?`,
		a.Name, a.Enabled, a.Order, a.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdateAutomation failed", "error", err, "automationID", a.ID)
		return fmt.Errorf("failed to update automation %s: %w", a.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("automation %s not found", a.ID)
	}
	if _, err := tx.Exec(`DELETE FROM triggers WHERE automation_id = ?`, a.ID); err != nil {
		return fmt.Errorf("failed to clear triggers for %s: %w", a.ID, err)
	}
	if _, err := tx.Exec(`DELETE FROM actions WHERE automation_id = ?`, a.ID); err != nil {
		return fmt.Errorf("failed to clear actions for %s: %w", a.ID, err)
	}
	if err := insertAutomationChildrenSQLite(tx, a); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("SQLiteStore UpdateAutomation succeeded", "automationID", a.ID)
	return nil
}

func (s *SQLiteStore) DeleteAutomation(id string) error {
	_, err := s.db.Exec(`DELETE FROM automations WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteAutomation failed", "error", err, "automationID", id)
		return err
	}
	slog.Debug("SQLiteStore DeleteAutomation succeeded", "automationID", id)
	return nil
}

func (s *SQLiteStore) CreateSchedule(sc models.Schedule) error {
	_, err := s.db.Exec(`INSERT INTO schedules (id, list_id, cron_expr, start_index) VALUES (?, ?, ?, ?)`,
		sc.ID, sc.ListID, sc.Cron, sc.StartIndex)
	if err != nil {
		slog.Error("SQLiteStore CreateSchedule failed", "error", err, "scheduleID", sc.ID)
		return fmt.Errorf("failed to insert schedule %s: %w", sc.ID, err)
	}
	slog.Debug("SQLiteStore CreateSchedule succeeded", "scheduleID", sc.ID, "cron", sc.Cron)
	return nil
}

func (s *SQLiteStore) ListSchedules() ([]models.Schedule, error) {
	rows, err := s.db.Query(`SELECT id, list_id, cron_expr, start_index FROM schedules ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListSchedules query failed", "error", err)
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		var sc models.Schedule
		if err := rows.Scan(&sc.ID, &sc.ListID, &sc.Cron, &sc.StartIndex); err != nil {
			slog.Error("SQLiteStore ListSchedules scan failed", "error", err)
			return nil, err
		}
		schedules = append(schedules, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slog.Debug("SQLiteStore ListSchedules succeeded", "count", len(schedules))
	return schedules, nil
}

func (s *SQLiteStore) DeleteSchedule(id string) error {
	_, err := s.db.Exec(`DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteSchedule failed", "error", err, "scheduleID", id)
		return err
	}
	slog.Debug("SQLiteStore DeleteSchedule succeeded", "scheduleID", id)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

func (s *SQLiteStore) loadAutomationChildren(a *models.Automation) error {
	trigRows, err := s.db.Query(`SELECT kind, timer_name, counter_name, seconds, target FROM triggers WHERE automation_id = ? ORDER BY id`, a.ID)
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
			slog.Error("SQLiteStore skipping undecodable trigger", "error", err, "automationID", a.ID)
			continue
		}
		a.Triggers = append(a.Triggers, t)
	}
	if err := trigRows.Err(); err != nil {
		return err
	}

	actRows, err := s.db.Query(`SELECT kind, sound_id, counter_name, delta, message FROM actions WHERE automation_id = ? ORDER BY id`, a.ID)
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
			slog.Error("SQLiteStore skipping undecodable action", "error", err, "automationID", a.ID)
			continue
		}
		a.Actions = append(a.Actions, act)
	}
	return actRows.Err()
}

func insertAutomationChildrenSQLite(tx *sql.Tx, a models.Automation) error {
	for _, t := range a.Triggers {
		e := models.EncodeTrigger(t)
		_, err := tx.Exec(`INSERT INTO triggers (automation_id, kind, timer_name, counter_name, seconds, target) VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, string(e.Kind), nilIfEmpty(e.TimerName), nilIfEmpty(e.CounterName), e.Seconds, e.Target)
		if err != nil {
			return fmt.Errorf("failed to insert trigger for %s: %w", a.ID, err)
		}
	}
	for _, act := range a.Actions {
		e := models.EncodeAction(act)
		_, err := tx.Exec(`INSERT INTO actions (automation_id, kind, sound_id, counter_name, delta, message) VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, string(e.Kind), nilIfEmpty(e.SoundID), nilIfEmpty(e.CounterName), e.Delta, nilIfEmpty(e.Message))
		if err != nil {
			return fmt.Errorf("failed to insert action for %s: %w", a.ID, err)
		}
	}
	return nil
}
