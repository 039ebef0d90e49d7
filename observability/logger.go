// Package observability records domain events (batch lifecycle) in SQLite.
//
// The event database is usually separate from the batch database to avoid
// write contention. Call Init() on it first, then pass it to NewEventLogger.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/docmerge/idgen"
)

// BusinessEvent represents a domain-level event to record.
type BusinessEvent struct {
	EventID     string    `json:"event_id,omitempty"`
	EventType   string    `json:"event_type"`
	ServiceName string    `json:"service"`
	EntityType  string    `json:"entity_type,omitempty"`
	EntityID    string    `json:"entity_id,omitempty"`
	Action      string    `json:"action"`
	Details     string    `json:"details,omitempty"` // optional JSON
	Success     bool      `json:"success"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// EventLogger writes business events and manages retention cleanup.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// NewEventLogger creates a logger backed by the given event database.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
		now:   time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent records a business event. Errors are logged via slog but do not
// propagate: a failing event store never fails a batch.
func (l *EventLogger) LogEvent(ctx context.Context, event BusinessEvent) {
	if event.EventID == "" {
		event.EventID = l.newID()
	}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = l.now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO business_event_logs (
			event_id, event_type, service_name, entity_type, entity_id,
			action, details, success, created_at
		) VALUES (?,?,?,?,?,?,?,?,?)`,
		event.EventID, event.EventType, event.ServiceName, event.EntityType, event.EntityID,
		event.Action, event.Details, event.Success, ts.Unix())
	if err != nil {
		slog.Error("observability event log failed", "error", err, "event_type", event.EventType)
	}
}

// Events returns the events recorded for one entity, oldest first.
func (l *EventLogger) Events(ctx context.Context, entityID string) ([]BusinessEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, event_type, service_name, entity_type, entity_id,
		       action, details, success, created_at
		FROM business_event_logs
		WHERE entity_id = ?
		ORDER BY created_at, rowid`, entityID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []BusinessEvent
	for rows.Next() {
		var (
			e                       BusinessEvent
			entityType, id, details sql.NullString
			ts                      int64
		)
		if err := rows.Scan(&e.EventID, &e.EventType, &e.ServiceName, &entityType, &id,
			&e.Action, &details, &e.Success, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.EntityType = entityType.String
		e.EntityID = id.String
		e.Details = details.String
		e.CreatedAt = time.Unix(ts, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RetentionConfig specifies retention in days. Zero means no cleanup.
type RetentionConfig struct {
	EventLogsDays  int
	RunVacuumAfter bool
}

// Cleanup deletes events exceeding the retention threshold.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	if cfg.EventLogsDays > 0 {
		cutoff := time.Now().Unix() - int64(cfg.EventLogsDays*86400)
		if _, err := db.ExecContext(ctx, "DELETE FROM business_event_logs WHERE created_at < ?", cutoff); err != nil {
			return fmt.Errorf("cleanup business_event_logs: %w", err)
		}
	}
	if cfg.RunVacuumAfter {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
	}
	return nil
}
