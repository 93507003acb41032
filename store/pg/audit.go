package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"

	internalaudit "github.com/tauinbox/client-server-starter-app-sub001/internal/audit"
)

// AuditSink appends audit events to the audit_log table. Rows are
// insert-only; the package never updates or deletes them. Entry ids are
// ULIDs, so scanning by primary key yields rough insertion order.
type AuditSink struct {
	db *sql.DB
}

var _ internalaudit.Sink = (*AuditSink)(nil)

// Emit writes one row. Failures are logged and dropped: the audit path must
// never push backpressure into the calling operation.
func (s *AuditSink) Emit(ctx context.Context, event internalaudit.Event) {
	if s == nil || s.db == nil {
		return
	}

	details := []byte("{}")
	if len(event.Details) > 0 {
		encoded, err := json.Marshal(event.Details)
		if err != nil {
			log.Print("authcore: audit details encoding failed")
		} else {
			details = encoded
		}
	}

	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, occurred_at, action, actor_id, actor_email,
			target_id, target_type, session_id, ip, user_agent, request_id,
			success, error, details)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, newID(), event.Timestamp, event.Action, event.ActorID, event.ActorEmail,
		event.TargetID, event.TargetType, event.SessionID, event.IP,
		event.UserAgent, event.RequestID, event.Success, event.Error, details)
	if err != nil {
		log.Print("authcore: audit insert failed")
	}
}
