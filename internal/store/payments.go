package store

import (
	"context"
	"database/sql"
	"fmt"

	"registration-service/internal/models"
)

// CreatePayment creates a new payment row for a checkout session
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (registration_id, group_id, stripe_session_id, amount, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, payment, query,
		payment.RegistrationID, payment.GroupID, payment.StripeSessionID,
		payment.Amount, payment.Status, payment.IdempotencyKey)
}

// GetPaymentBySessionID retrieves a payment by its checkout session id.
// Returns (nil, nil) when no row exists: a missing row is an orphaned-event
// signal for the webhook handler, not an error.
func (s *Store) GetPaymentBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE stripe_session_id = $1", sessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPendingPaymentByRegistrationID finds an open payment row for a solo
// registration, or (nil, nil).
func (s *Store) GetPendingPaymentByRegistrationID(ctx context.Context, registrationID int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, `
		SELECT * FROM payments
		WHERE registration_id = $1 AND group_id IS NULL AND status = $2
		ORDER BY created_at DESC LIMIT 1`,
		registrationID, models.PaymentStatusPending)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPendingPaymentByGroupID finds an open payment row for a group, or (nil, nil).
func (s *Store) GetPendingPaymentByGroupID(ctx context.Context, groupID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, `
		SELECT * FROM payments
		WHERE group_id = $1 AND status = $2
		ORDER BY created_at DESC LIMIT 1`,
		groupID, models.PaymentStatusPending)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdatePaymentSession re-points an existing pending payment at a freshly
// created checkout session. Guarded on status = pending even on this update
// path so a concurrent webhook completion is never overwritten.
func (s *Store) UpdatePaymentSession(ctx context.Context, paymentID int64, sessionID string, amount int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET stripe_session_id = $1, amount = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		sessionID, amount, paymentID, models.PaymentStatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CompletePayment transitions a payment pending -> completed, recording the
// provider's payment intent and event id. The status precondition is the
// first-write-wins guard: under duplicate or concurrent webhook deliveries
// exactly one caller sees 1 row affected.
func (s *Store) CompletePayment(ctx context.Context, sessionID, paymentIntentID, eventID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, stripe_payment_intent_id = $2, stripe_event_id = $3, updated_at = NOW()
		WHERE stripe_session_id = $4 AND status = $5`,
		models.PaymentStatusCompleted, paymentIntentID, eventID,
		sessionID, models.PaymentStatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExpirePayment transitions a payment pending -> expired. Registrations stay
// pending so the registrant can retry checkout.
func (s *Store) ExpirePayment(ctx context.Context, sessionID, eventID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, stripe_event_id = $2, updated_at = NOW()
		WHERE stripe_session_id = $3 AND status = $4`,
		models.PaymentStatusExpired, eventID,
		sessionID, models.PaymentStatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HasProcessedProviderEvent reports whether a provider event id was already
// recorded against any payment row. The stripe_event_id column doubles as
// the idempotency ledger for at-least-once webhook delivery.
func (s *Store) HasProcessedProviderEvent(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM payments WHERE stripe_event_id = $1)", eventID)
	if err != nil {
		return false, fmt.Errorf("failed to check event ledger: %w", err)
	}
	return exists, nil
}
