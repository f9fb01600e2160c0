package store

import (
	"context"
	"database/sql"
	"fmt"

	"registration-service/internal/models"
)

// CreateRegistration creates a new registration row
func (s *Store) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	query := `
		INSERT INTO registrations (
			event_id, group_id, name, email, phone, date_of_birth,
			age_at_event, category, full_duration, motel_stay, num_days,
			computed_amount, explanation_code, explanation_detail,
			status, confirmed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, reg, query,
		reg.EventID, reg.GroupID, reg.Name, reg.Email, reg.Phone, reg.DateOfBirth,
		reg.AgeAtEvent, reg.Category, reg.FullDuration, reg.MotelStay, reg.NumDays,
		reg.ComputedAmount, reg.ExplanationCode, reg.ExplanationDetail,
		reg.Status, reg.ConfirmedAt)
}

// GetRegistrationByID retrieves a registration by ID
func (s *Store) GetRegistrationByID(ctx context.Context, id int64) (*models.Registration, error) {
	var reg models.Registration
	err := s.db.GetContext(ctx, &reg, "SELECT * FROM registrations WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("registration %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetRegistrationsByGroupID retrieves all registrations sharing a group, in
// insertion order. The first row is the group's primary registration.
func (s *Store) GetRegistrationsByGroupID(ctx context.Context, groupID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := s.db.SelectContext(ctx, &regs,
		"SELECT * FROM registrations WHERE group_id = $1 ORDER BY id", groupID)
	return regs, err
}

// UpdateRegistrationPricing overwrites the stored price and explanation on a
// pending registration after a drift-correcting recompute. Not status-guarded:
// it never changes status, and the checkout line items are authoritative for
// the charge either way, so last-writer-wins is acceptable.
func (s *Store) UpdateRegistrationPricing(ctx context.Context, id int64, amount int64, code, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE registrations
		SET computed_amount = $1, explanation_code = $2, explanation_detail = $3, updated_at = NOW()
		WHERE id = $4`,
		amount, code, detail, id)
	return err
}

// ConfirmRegistration transitions a single registration pending -> confirmed.
// The status precondition makes the transition compare-and-swap: a zero
// return means another handler already confirmed it.
func (s *Store) ConfirmRegistration(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE registrations
		SET status = $1, confirmed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		models.RegistrationStatusConfirmed, id, models.RegistrationStatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ConfirmGroupRegistrations confirms every pending registration in a group
// in one statement, so a crash can never leave the group half-confirmed.
func (s *Store) ConfirmGroupRegistrations(ctx context.Context, groupID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE registrations
		SET status = $1, confirmed_at = NOW(), updated_at = NOW()
		WHERE group_id = $2 AND status = $3`,
		models.RegistrationStatusConfirmed, groupID, models.RegistrationStatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
