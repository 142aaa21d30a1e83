package shared

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/growsome/growsome/internal/platform/db"
)

// Audit actions recorded by the auth core.
const (
	AuditActionLogin         = "auth.login"
	AuditActionLogout        = "auth.logout"
	AuditActionLogoutAll     = "auth.logout_all"
	AuditActionUserProvision = "users.provision"
	AuditEntitySession       = "session"
	AuditEntityUser          = "user"
)

// AuditEntry is a single audit_logs row.
type AuditEntry struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Auditor records audit entries. Implementations must not block the caller
// for longer than a single insert.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// AuditLogger writes entries into audit_logs.
type AuditLogger struct {
	conn db.DBTX
}

// NewAuditLogger returns a new AuditLogger writing through conn.
func NewAuditLogger(conn db.DBTX) *AuditLogger {
	return &AuditLogger{conn: conn}
}

// Record persists the entry.
func (l *AuditLogger) Record(ctx context.Context, entry AuditEntry) error {
	if l == nil || l.conn == nil {
		return errors.New("audit logger not initialised")
	}
	if err := entry.validate(); err != nil {
		return err
	}
	meta := entry.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !entry.At.IsZero() {
		at = &entry.At
	}
	_, err = l.conn.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		entry.ActorID, entry.Action, entry.Entity, entry.EntityID, metaJSON, at)
	return err
}

func (e AuditEntry) validate() error {
	if e.Action == "" || e.Entity == "" || e.EntityID == "" {
		return errors.New("audit entry requires action/entity/entity_id")
	}
	return nil
}

// NopAuditor discards entries.
type NopAuditor struct{}

// Record implements Auditor.
func (NopAuditor) Record(context.Context, AuditEntry) error { return nil }

// EntityID formats a numeric identifier for AuditEntry.EntityID.
func EntityID(id int64) string {
	return strconv.FormatInt(id, 10)
}
