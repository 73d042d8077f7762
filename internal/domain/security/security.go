package security

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event types for the operational/forensic channel. These are distinct from
// audit records: audit is the LGPD-mandated processing trail, security events
// capture failed or suspicious requests.
const (
	EventTokenMissing       = "token_missing"
	EventTokenInvalid       = "token_invalid"
	EventPermissionDenied   = "permission_denied"
	EventInvalidDeletion    = "invalid_deletion_attempt"
	EventCronSecretMismatch = "cron_secret_mismatch"
)

type Event struct {
	UserID    string
	EventType string
	Detail    string
	IP        string
	RequestID string
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

// Record is best-effort: failures are logged, never propagated, so a broken
// forensic channel cannot block request handling.
func (s *Service) Record(ctx context.Context, evt Event) {
	if s == nil || s.DB == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	var userID any
	if evt.UserID != "" {
		userID = evt.UserID
	}
	if _, err := s.DB.Exec(ctx, `
    INSERT INTO security_events (user_id, event_type, detail, ip, request_id)
    VALUES ($1,$2,$3,$4,$5)
  `, userID, evt.EventType, evt.Detail, evt.IP, evt.RequestID); err != nil {
		slog.Warn("security event write failed", "eventType", evt.EventType, "err", err)
	}
}
