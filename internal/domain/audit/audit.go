package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Lifecycle actions recorded in the LGPD processing trail.
const (
	ActionAccountAnonymized     = "account_anonymized"
	ActionAccountDeleted        = "account_permanent_delete"
	ActionReactivationRequested = "reactivation_requested"
	ActionReactivationSubmitted = "reactivation_submitted"
	ActionReactivationApproved  = "reactivation_approved"
	ActionReactivationRejected  = "reactivation_rejected"
	ActionDataExported          = "data_exported"
	ActionLogsViewed            = "audit_logs_viewed"
	ActionConsentUpdated        = "consent_updated"
)

const (
	BasisConsent            = "consent"
	BasisLegalObligation    = "legal_obligation"
	BasisLegitimateInterest = "legitimate_interest"
	BasisContract           = "contract"
)

const listLimit = 100

type Record struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Action     string    `json:"action"`
	DataType   string    `json:"dataType"`
	Timestamp  time.Time `json:"timestamp"`
	Purpose    string    `json:"purpose"`
	LegalBasis string    `json:"legalBasis"`
	AdminID    string    `json:"adminId,omitempty"`
}

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so records can be
// appended inside a lifecycle transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

// Record appends one immutable entry. The table has no UPDATE or DELETE path
// anywhere in this codebase.
func (s *Service) Record(ctx context.Context, rec Record) error {
	return Append(ctx, s.DB, rec)
}

func Append(ctx context.Context, db DBTX, rec Record) error {
	var adminID any
	if rec.AdminID != "" {
		adminID = rec.AdminID
	}
	_, err := db.Exec(ctx, `
    INSERT INTO audit_records (user_id, action, data_type, purpose, legal_basis, admin_id)
    VALUES ($1,$2,$3,$4,$5,$6)
  `, rec.UserID, rec.Action, rec.DataType, rec.Purpose, rec.LegalBasis, adminID)
	return err
}

// ListForUser returns the user's trail, most recent first, capped at 100.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Record, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, user_id, action, data_type, purpose, legal_basis, COALESCE(admin_id::text, ''), created_at
    FROM audit_records
    WHERE user_id = $1
    ORDER BY created_at DESC
    LIMIT $2
  `, userID, listLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Action, &rec.DataType, &rec.Purpose, &rec.LegalBasis, &rec.AdminID, &rec.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
