package store

import (
	"context"
	"database/sql"
	"fmt"

	"festival-ticketing/internal/models"
)

// HasBlockingPurchase reports whether the buyer already has a live purchase
// attempt (INITIATED or PAID) for the ticket. Canceled and refunded
// purchases do not block a new attempt.
func (s *Store) HasBlockingPurchase(ctx context.Context, ticketID, buyerID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(
			SELECT 1 FROM purchases
			WHERE ticket_id = $1 AND buyer_id = $2 AND status IN ($3, $4))`,
		ticketID, buyerID, models.PurchaseStatusInitiated, models.PurchaseStatusPaid)
	return exists, err
}

// CreatePurchaseWithPayment inserts the INITIATED purchase and its payment
// record in one transaction, both carrying the generated payment UUID.
func (s *Store) CreatePurchaseWithPayment(ctx context.Context, purchase *models.Purchase, payment *models.Payment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, purchase, `
		INSERT INTO purchases (payment_uuid, ticket_id, buyer_id, status, purchase_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		purchase.PaymentUUID, purchase.TicketID, purchase.BuyerID, purchase.Status, purchase.PurchaseTime)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrAlreadyPurchased
		}
		return fmt.Errorf("failed to create purchase: %w", err)
	}

	payment.PurchaseID = purchase.ID
	err = tx.GetContext(ctx, payment, `
		INSERT INTO payments (payment_uuid, purchase_id, status, payment_time)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		payment.PaymentUUID, payment.PurchaseID, payment.Status, payment.PaymentTime)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return tx.Commit()
}

// GetPaymentWithPurchase loads a payment and its purchase by payment UUID.
// Returns ErrPaymentNotFound when the UUID is unknown.
func (s *Store) GetPaymentWithPurchase(ctx context.Context, paymentUUID string) (*models.Payment, *models.Purchase, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE payment_uuid = $1", paymentUUID)
	if err == sql.ErrNoRows {
		return nil, nil, models.ErrPaymentNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	var purchase models.Purchase
	err = s.db.GetContext(ctx, &purchase,
		"SELECT * FROM purchases WHERE id = $1", payment.PurchaseID)
	if err == sql.ErrNoRows {
		return nil, nil, models.ErrPurchaseNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	return &payment, &purchase, nil
}

// UpdatePaymentStatus moves a payment to its new status
func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentUUID string, status models.PaymentStatus) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payments SET status = $1, updated_at = NOW() WHERE payment_uuid = $2",
		status, paymentUUID)
	return err
}

// UpdatePurchaseStatus moves a purchase to its new status
func (s *Store) UpdatePurchaseStatus(ctx context.Context, purchaseID int64, status models.PurchaseStatus) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE purchases SET status = $1 WHERE id = $2",
		status, purchaseID)
	return err
}

// GetPurchaseStatusByPaymentUUID returns the purchase status for polling
func (s *Store) GetPurchaseStatusByPaymentUUID(ctx context.Context, paymentUUID string) (models.PurchaseStatus, error) {
	var status models.PurchaseStatus
	err := s.db.GetContext(ctx, &status,
		"SELECT status FROM purchases WHERE payment_uuid = $1", paymentUUID)
	if err == sql.ErrNoRows {
		return "", models.ErrPurchaseNotFound
	}
	return status, err
}

// CreatePendingCheckin inserts a pending checkin for (buyer, ticket).
// Duplicate-safe so a redelivered payment result does not fail.
func (s *Store) CreatePendingCheckin(ctx context.Context, buyerID, ticketID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkins (buyer_id, ticket_id, checked_in)
		 VALUES ($1, $2, FALSE)
		 ON CONFLICT (buyer_id, ticket_id) DO NOTHING`,
		buyerID, ticketID)
	return err
}
