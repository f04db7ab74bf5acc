package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront-service/internal/models"
)

// CreateAttempt records a new checkout attempt
func (s *Store) CreateAttempt(ctx context.Context, attempt *models.CheckoutAttempt) error {
	query := `
		INSERT INTO checkout_attempts (user_id, address_id, amount, outcome)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, attempt, query,
		attempt.UserID, attempt.AddressID, attempt.Amount, attempt.Outcome)
}

// AttachOrder links the server-created order to an attempt
func (s *Store) AttachOrder(ctx context.Context, attemptID, orderID int64, gatewayOrderID string, amount int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE checkout_attempts SET order_id = $1, gateway_order_id = $2, amount = $3, updated_at = NOW() WHERE id = $4",
		orderID, gatewayOrderID, amount, attemptID)
	return err
}

// SetOutcome records how an attempt ended
func (s *Store) SetOutcome(ctx context.Context, attemptID int64, outcome, reason string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE checkout_attempts SET outcome = $1, failure_reason = $2, updated_at = NOW() WHERE id = $3",
		outcome, reason, attemptID)
	return err
}

// GetAttemptByID retrieves one checkout attempt
func (s *Store) GetAttemptByID(ctx context.Context, id int64) (*models.CheckoutAttempt, error) {
	var attempt models.CheckoutAttempt
	err := s.db.GetContext(ctx, &attempt, "SELECT * FROM checkout_attempts WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("checkout attempt not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// GetAttemptsByUserID retrieves a user's checkout attempts, newest
// first
func (s *Store) GetAttemptsByUserID(ctx context.Context, userID int64) ([]models.CheckoutAttempt, error) {
	var attempts []models.CheckoutAttempt
	err := s.db.SelectContext(ctx, &attempts,
		"SELECT * FROM checkout_attempts WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return attempts, err
}

// AddPendingVerification queues an unknown-outcome verification for
// the background reconciliation poll
func (s *Store) AddPendingVerification(ctx context.Context, pv *models.PendingVerification) error {
	query := `
		INSERT INTO pending_verifications (attempt_id, user_id, order_id, gateway_order_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, pv, query,
		pv.AttemptID, pv.UserID, pv.OrderID, pv.GatewayOrderID)
}

// ListPendingVerifications retrieves queued verifications, oldest
// first
func (s *Store) ListPendingVerifications(ctx context.Context, limit int) ([]models.PendingVerification, error) {
	var pending []models.PendingVerification
	err := s.db.SelectContext(ctx, &pending,
		"SELECT * FROM pending_verifications ORDER BY created_at ASC LIMIT $1", limit)
	return pending, err
}

// DeletePendingVerification removes a reconciled entry
func (s *Store) DeletePendingVerification(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM pending_verifications WHERE id = $1", id)
	return err
}
