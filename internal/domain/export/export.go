package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Service assembles everything the platform holds about one user into a
// single export payload.
type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) BuildUserData(ctx context.Context, userID string) (map[string]any, error) {
	user, err := s.queryRowsAsJSON(ctx, `
    SELECT row_to_json(u) FROM (
      SELECT id, email, name, cpf, phone, anonymized, anonymization_reason,
             anonymized_at, reverting_anonymization, admin_role, created_at
      FROM users WHERE id = $1
    ) u
  `, userID)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"exportedAt": time.Now().UTC(),
		"userId":     userID,
	}
	if len(user) > 0 {
		payload["user"] = user[0]
	}

	// A failed section is reported as incomplete, never silently dropped:
	// this export backs a legal right.
	if rows, err := s.queryRowsAsJSON(ctx, `SELECT row_to_json(cr) FROM consent_records cr WHERE user_id = $1`, userID); err == nil {
		payload["consents"] = rows
	} else {
		return nil, fmt.Errorf("export consents: %w", err)
	}
	if rows, err := s.queryRowsAsJSON(ctx, `
    SELECT row_to_json(ar) FROM (
      SELECT id, user_id, action, data_type, purpose, legal_basis, admin_id, created_at
      FROM audit_records WHERE user_id = $1
      ORDER BY created_at DESC
    ) ar
  `, userID); err == nil {
		payload["auditRecords"] = rows
	} else {
		return nil, fmt.Errorf("export audit records: %w", err)
	}
	if rows, err := s.queryRowsAsJSON(ctx, `SELECT row_to_json(rr) FROM reactivation_requests rr WHERE user_id = $1`, userID); err == nil {
		payload["reactivationRequests"] = rows
	} else {
		return nil, fmt.Errorf("export reactivation requests: %w", err)
	}

	return payload, nil
}

func (s *Service) queryRowsAsJSON(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var rowJSON []byte
		if err := rows.Scan(&rowJSON); err != nil {
			return nil, err
		}
		var row map[string]any
		if err := json.Unmarshal(rowJSON, &row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
