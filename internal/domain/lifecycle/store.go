package lifecycle

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"zonafiscal/internal/domain/audit"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const userColumns = `
  id, email, name, COALESCE(cpf, ''), COALESCE(phone, ''),
  anonymized, COALESCE(anonymization_reason, ''), anonymized_at,
  reverting_anonymization, admin_role, created_at
`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.CPF, &u.Phone,
		&u.Anonymized, &u.AnonymizationReason, &u.AnonymizedAt,
		&u.RevertingAnonymization, &u.AdminRole, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

func (s *Store) GetUser(ctx context.Context, userID string) (User, error) {
	return scanUser(s.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

func (s *Store) ListAnonymizedUsers(ctx context.Context) ([]User, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+userColumns+`
    FROM users
    WHERE anonymized = true
    ORDER BY anonymized_at DESC NULLS LAST
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

const requestColumns = `
  token, user_id, status, requested_at, requested_by, COALESCE(notify_email, ''),
  submitted_name, submitted_email, submitted_cpf, submitted_phone, submitted_at,
  approved_at, COALESCE(approved_by::text, ''), rejected_at, COALESCE(rejected_by::text, '')
`

func scanRequest(row pgx.Row) (ReactivationRequest, error) {
	var req ReactivationRequest
	var name, email, cpf, phone *string
	err := row.Scan(&req.Token, &req.UserID, &req.Status, &req.RequestedAt, &req.RequestedBy, &req.NotifyEmail,
		&name, &email, &cpf, &phone, &req.SubmittedAt,
		&req.ApprovedAt, &req.ApprovedBy, &req.RejectedAt, &req.RejectedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReactivationRequest{}, ErrRequestNotFound
	}
	if err != nil {
		return ReactivationRequest{}, err
	}
	if name != nil || email != nil {
		req.Submitted = &SubmittedData{
			Name:  deref(name),
			Email: deref(email),
			CPF:   deref(cpf),
			Phone: deref(phone),
		}
	}
	return req, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func (s *Store) GetRequest(ctx context.Context, token string) (ReactivationRequest, error) {
	return scanRequest(s.DB.QueryRow(ctx, `
    SELECT `+requestColumns+`
    FROM reactivation_requests
    WHERE token = $1
  `, token))
}

// ListOpenRequests returns requests still in flight (pending or awaiting
// approval), most recent first.
func (s *Store) ListOpenRequests(ctx context.Context) ([]ReactivationRequest, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+requestColumns+`
    FROM reactivation_requests
    WHERE status IN ($1, $2)
    ORDER BY requested_at DESC
  `, StatusPending, StatusAwaitingApproval)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReactivationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// begin starts a transaction whose writes (user, request, audit) commit or
// fail as one unit.
func (s *Store) begin(ctx context.Context) (pgx.Tx, error) {
	return s.DB.BeginTx(ctx, pgx.TxOptions{})
}

var _ audit.DBTX = (*pgxpool.Pool)(nil)
