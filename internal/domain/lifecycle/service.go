package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"zonafiscal/internal/domain/audit"
)

type Service struct {
	store  *Store
	window time.Duration
}

func NewService(store *Store, window time.Duration) *Service {
	if window <= 0 {
		window = ReactivationWindow
	}
	return &Service{store: store, window: window}
}

func (s *Service) Window() time.Duration {
	return s.window
}

// Anonymize scrubs the personally identifying fields of an active account
// and appends the audit record, all in one transaction.
func (s *Service) Anonymize(ctx context.Context, userID, reason string) error {
	tx, err := s.store.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	user, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
	if err != nil {
		return err
	}
	if user.Anonymized {
		return ErrAlreadyAnonymized
	}

	placeholder := fmt.Sprintf("anonimizado+%s@zonafiscal.com.br", userID)
	if _, err := tx.Exec(ctx, `
    UPDATE users
    SET name = 'Usuário Anonimizado',
        email = $1,
        cpf = NULL,
        phone = NULL,
        anonymized = true,
        anonymization_reason = $2,
        anonymized_at = now(),
        updated_at = now()
    WHERE id = $3
  `, placeholder, reason, userID); err != nil {
		return err
	}

	if err := audit.Append(ctx, tx, audit.Record{
		UserID:     userID,
		Action:     audit.ActionAccountAnonymized,
		DataType:   "user_account",
		Purpose:    "Anonimização solicitada pelo titular",
		LegalBasis: audit.BasisConsent,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// DeletePermanently removes the user and its owned data. Audit records are
// retained under legal obligation; a final record marks the deletion.
func (s *Service) DeletePermanently(ctx context.Context, userID, reason string) error {
	tx, err := s.store.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID)); err != nil {
		return err
	}

	if err := audit.Append(ctx, tx, audit.Record{
		UserID:     userID,
		Action:     audit.ActionAccountDeleted,
		DataType:   "user_account",
		Purpose:    reason,
		LegalBasis: audit.BasisLegalObligation,
	}); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM consent_records WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM reactivation_requests WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// RequestRevert opens a reactivation request for an anonymized user. The
// token equals the user id. A prior approved/rejected request is recycled;
// an open one is refused. notifyEmail is the out-of-band contact address for
// the token link: the user row's email was replaced by the anonymization
// placeholder and is undeliverable.
func (s *Service) RequestRevert(ctx context.Context, adminID, userID, notifyEmail string) (ReactivationRequest, error) {
	tx, err := s.store.begin(ctx)
	if err != nil {
		return ReactivationRequest{}, err
	}
	defer tx.Rollback(ctx)

	user, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
	if err != nil {
		return ReactivationRequest{}, err
	}
	if !user.Anonymized {
		return ReactivationRequest{}, ErrNotAnonymized
	}

	existing, err := scanRequest(tx.QueryRow(ctx, `
    SELECT `+requestColumns+`
    FROM reactivation_requests
    WHERE token = $1
    FOR UPDATE
  `, userID))
	switch {
	case err == nil:
		open := existing.Status == StatusPending || existing.Status == StatusAwaitingApproval
		if open && !TokenExpired(existing.RequestedAt, time.Now(), s.window) {
			return ReactivationRequest{}, ErrRevertInProgress
		}
	case errors.Is(err, ErrRequestNotFound):
	default:
		return ReactivationRequest{}, err
	}

	if _, err := tx.Exec(ctx, `
    INSERT INTO reactivation_requests (token, user_id, status, requested_at, requested_by, notify_email)
    VALUES ($1, $1, $2, now(), $3, $4)
    ON CONFLICT (token) DO UPDATE
    SET status = EXCLUDED.status,
        requested_at = EXCLUDED.requested_at,
        requested_by = EXCLUDED.requested_by,
        notify_email = EXCLUDED.notify_email,
        submitted_name = NULL,
        submitted_email = NULL,
        submitted_cpf = NULL,
        submitted_phone = NULL,
        submitted_at = NULL,
        approved_at = NULL,
        approved_by = NULL,
        rejected_at = NULL,
        rejected_by = NULL
  `, userID, StatusPending, adminID, nullable(notifyEmail)); err != nil {
		return ReactivationRequest{}, err
	}

	if _, err := tx.Exec(ctx, `
    UPDATE users SET reverting_anonymization = true, updated_at = now() WHERE id = $1
  `, userID); err != nil {
		return ReactivationRequest{}, err
	}

	if err := audit.Append(ctx, tx, audit.Record{
		UserID:     userID,
		Action:     audit.ActionReactivationRequested,
		DataType:   "reactivation_request",
		Purpose:    "Reversão de anonimização iniciada por administrador",
		LegalBasis: audit.BasisLegitimateInterest,
		AdminID:    adminID,
	}); err != nil {
		return ReactivationRequest{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ReactivationRequest{}, err
	}

	req, err := s.store.GetRequest(ctx, userID)
	if err != nil {
		return ReactivationRequest{}, err
	}
	return req, nil
}

// ValidateToken checks a token for the read-only validation endpoint using
// the same rules as submission.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, error) {
	req, err := s.store.GetRequest(ctx, token)
	if err != nil {
		return "", err
	}
	if err := CanSubmit(req, time.Now(), s.window); err != nil {
		return "", err
	}
	return req.UserID, nil
}

// SubmitReactivation moves a pending request to awaiting_approval with the
// identity data supplied by the user.
func (s *Service) SubmitReactivation(ctx context.Context, token string, data SubmittedData) error {
	tx, err := s.store.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	req, err := scanRequest(tx.QueryRow(ctx, `
    SELECT `+requestColumns+`
    FROM reactivation_requests
    WHERE token = $1
    FOR UPDATE
  `, token))
	if err != nil {
		return err
	}
	if err := CanSubmit(req, time.Now(), s.window); err != nil {
		return err
	}

	// Status guard: a concurrent submission of the same token loses here.
	tag, err := tx.Exec(ctx, `
    UPDATE reactivation_requests
    SET status = $1,
        submitted_name = $2,
        submitted_email = $3,
        submitted_cpf = $4,
        submitted_phone = $5,
        submitted_at = now()
    WHERE token = $6 AND status = $7
  `, StatusAwaitingApproval, data.Name, data.Email, data.CPF, nullable(data.Phone), token, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}

	if err := audit.Append(ctx, tx, audit.Record{
		UserID:     req.UserID,
		Action:     audit.ActionReactivationSubmitted,
		DataType:   "reactivation_request",
		Purpose:    "Titular enviou dados para reativação",
		LegalBasis: audit.BasisConsent,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Decide approves or rejects an awaiting_approval request. Approval restores
// the user from the submitted data; rejection leaves the user record
// untouched. The WHERE status guard makes the first deciding admin win.
func (s *Service) Decide(ctx context.Context, adminID, token string, approved bool) error {
	tx, err := s.store.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	req, err := scanRequest(tx.QueryRow(ctx, `
    SELECT `+requestColumns+`
    FROM reactivation_requests
    WHERE token = $1
    FOR UPDATE
  `, token))
	if err != nil {
		return err
	}
	if err := CanDecide(req); err != nil {
		return err
	}

	if approved {
		if req.Submitted == nil {
			return ErrAlreadyProcessed
		}
		if _, err := tx.Exec(ctx, `
      UPDATE users
      SET name = $1,
          email = $2,
          cpf = $3,
          phone = $4,
          anonymized = false,
          anonymization_reason = NULL,
          anonymized_at = NULL,
          reverting_anonymization = false,
          updated_at = now()
      WHERE id = $5
    `, req.Submitted.Name, req.Submitted.Email, req.Submitted.CPF, nullable(req.Submitted.Phone), req.UserID); err != nil {
			// The submitted email may have been registered by another
			// account while the request sat awaiting approval.
			if isUniqueViolation(err) {
				return ErrEmailTaken
			}
			return err
		}

		tag, err := tx.Exec(ctx, `
      UPDATE reactivation_requests
      SET status = $1, approved_at = now(), approved_by = $2
      WHERE token = $3 AND status = $4
    `, StatusApproved, adminID, token, StatusAwaitingApproval)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyProcessed
		}

		if err := audit.Append(ctx, tx, audit.Record{
			UserID:     req.UserID,
			Action:     audit.ActionReactivationApproved,
			DataType:   "user_account",
			Purpose:    "Reativação aprovada por administrador",
			LegalBasis: audit.BasisConsent,
			AdminID:    adminID,
		}); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	tag, err := tx.Exec(ctx, `
    UPDATE reactivation_requests
    SET status = $1, rejected_at = now(), rejected_by = $2
    WHERE token = $3 AND status = $4
  `, StatusRejected, adminID, token, StatusAwaitingApproval)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}

	// Rejection is terminal: the workflow flag comes off so the account
	// reads as plainly anonymized again. The anonymization fields
	// themselves stay untouched.
	if _, err := tx.Exec(ctx, `
    UPDATE users SET reverting_anonymization = false, updated_at = now() WHERE id = $1
  `, req.UserID); err != nil {
		return err
	}

	if err := audit.Append(ctx, tx, audit.Record{
		UserID:     req.UserID,
		Action:     audit.ActionReactivationRejected,
		DataType:   "reactivation_request",
		Purpose:    "Reativação rejeitada por administrador",
		LegalBasis: audit.BasisLegitimateInterest,
		AdminID:    adminID,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ExpireStaleRequests clears the reverting flag of users whose pending
// request fell past the window. Request status stays untouched: expiry is
// implicit and a stale token keeps failing validation on its own.
func (s *Service) ExpireStaleRequests(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.window)
	tag, err := s.store.DB.Exec(ctx, `
    UPDATE users u
    SET reverting_anonymization = false, updated_at = now()
    FROM reactivation_requests rr
    WHERE rr.user_id = u.id
      AND rr.status = $1
      AND rr.requested_at < $2
      AND u.reverting_anonymization = true
  `, StatusPending, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
