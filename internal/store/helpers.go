package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/BTreeMap/TimerPipe/internal/models"
)

// DetectDSNType returns "postgres" for PostgreSQL-style DSNs and "sqlite"
// otherwise (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanCounter scans a Counter from sql.Rows.
func scanCounter(rows *sql.Rows) (models.Counter, error) {
	var c models.Counter
	var minVal, maxVal sql.NullInt64
	err := rows.Scan(&c.ID, &c.ListID, &c.Name, &c.Value, &c.InitialValue, &minVal, &maxVal, &c.Order)
	if err != nil {
		return c, fmt.Errorf("scan counter failed: %w", err)
	}
	if minVal.Valid {
		v := int(minVal.Int64)
		c.MinValue = &v
	}
	if maxVal.Valid {
		v := int(maxVal.Int64)
		c.MaxValue = &v
	}
	return c, nil
}

// scanTrigger scans a trigger row into its wire envelope.
func scanTrigger(rows *sql.Rows) (models.TriggerEnvelope, error) {
	var e models.TriggerEnvelope
	var timerName, counterName sql.NullString
	var seconds sql.NullFloat64
	var target sql.NullInt64
	if err := rows.Scan(&e.Kind, &timerName, &counterName, &seconds, &target); err != nil {
		return e, fmt.Errorf("scan trigger failed: %w", err)
	}
	e.TimerName = timerName.String
	e.CounterName = counterName.String
	e.Seconds = seconds.Float64
	e.Target = int(target.Int64)
	return e, nil
}

// scanAction scans an action row into its wire envelope.
func scanAction(rows *sql.Rows) (models.ActionEnvelope, error) {
	var e models.ActionEnvelope
	var soundID, counterName, message sql.NullString
	var delta sql.NullInt64
	if err := rows.Scan(&e.Kind, &soundID, &counterName, &delta, &message); err != nil {
		return e, fmt.Errorf("scan action failed: %w", err)
	}
	e.SoundID = soundID.String
	e.CounterName = counterName.String
	e.Delta = int(delta.Int64)
	e.Message = message.String
	return e, nil
}

// nullableBound converts an optional counter bound for insertion.
func nullableBound(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
