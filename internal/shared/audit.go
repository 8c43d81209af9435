package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// AuditLog is one row of audit_logs. ActorID 0 means the system acted.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger appends records to audit_logs. The timeline reader lives in
// internal/audit.
type AuditLogger struct {
	db Execer
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action, entity and entity_id")
	}
	var meta []byte
	if len(log.Meta) > 0 {
		var err error
		if meta, err = json.Marshal(log.Meta); err != nil {
			return fmt.Errorf("audit meta: %w", err)
		}
	}
	var actor *int64
	if log.ActorID > 0 {
		actor = &log.ActorID
	}
	var at *time.Time
	if !log.At.IsZero() {
		utc := log.At.UTC()
		at = &utc
	}
	_, err := l.db.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		actor, log.Action, log.Entity, log.EntityID, meta, at)
	return err
}
