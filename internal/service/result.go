package service

import (
	"context"
	"errors"
	"fmt"

	"festival-ticketing/internal/models"
	"festival-ticketing/internal/util"

	"go.uber.org/zap"
)

// ResultStore is the slice of the store the result handler needs
type ResultStore interface {
	GetPaymentWithPurchase(ctx context.Context, paymentUUID string) (*models.Payment, *models.Purchase, error)
	UpdatePaymentStatus(ctx context.Context, paymentUUID string, status models.PaymentStatus) error
	UpdatePurchaseStatus(ctx context.Context, purchaseID int64, status models.PurchaseStatus) error
	CreatePendingCheckin(ctx context.Context, buyerID, ticketID int64) error
}

// Compensator releases the stock unit a buyer reserved when the saga fails
type Compensator interface {
	Rollback(ctx context.Context, ticketID, buyerID int64) error
}

// ResultService settles payment verdicts: success finalizes the purchase
// and provisions a check-in, failure compensates the reservation.
type ResultService struct {
	store       ResultStore
	compensator Compensator
	logger      *zap.Logger
}

func NewResultService(store ResultStore, compensator Compensator) *ResultService {
	return &ResultService{
		store:       store,
		compensator: compensator,
		logger:      util.NamedLogger("payment-result"),
	}
}

// HandlePaymentResult applies a terminal payment verdict. A result that
// references an unknown payment means the request and result logs disagree
// with the database, which is corruption, not a transient fault.
func (s *ResultService) HandlePaymentResult(ctx context.Context, result models.PaymentResultMessage) error {
	ctx, span := util.StartSpan(ctx, "ResultService.HandlePaymentResult")
	defer span.End()

	payment, purchase, err := s.store.GetPaymentWithPurchase(ctx, result.PaymentID)
	if errors.Is(err, models.ErrPaymentNotFound) || errors.Is(err, models.ErrPurchaseNotFound) {
		return fmt.Errorf("%w: no payment for result %s", models.ErrPaymentCorrupted, result.PaymentID)
	}
	if err != nil {
		return fmt.Errorf("failed to load payment %s: %w", result.PaymentID, err)
	}

	switch {
	case result.Status.IsSuccess():
		return s.settleSuccess(ctx, payment, purchase)
	case result.Status.IsFailed():
		return s.settleFailure(ctx, payment, purchase, result.Status)
	default:
		return fmt.Errorf("%w: non-terminal result status %s for %s",
			models.ErrPaymentCorrupted, result.Status, result.PaymentID)
	}
}

func (s *ResultService) settleSuccess(ctx context.Context, payment *models.Payment, purchase *models.Purchase) error {
	if err := s.store.UpdatePaymentStatus(ctx, payment.PaymentUUID, models.PaymentStatusSuccess); err != nil {
		return fmt.Errorf("failed to mark payment success: %w", err)
	}
	if err := s.store.UpdatePurchaseStatus(ctx, purchase.ID, models.PurchaseStatusPaid); err != nil {
		return fmt.Errorf("failed to mark purchase paid: %w", err)
	}
	if err := s.store.CreatePendingCheckin(ctx, purchase.BuyerID, purchase.TicketID); err != nil {
		return fmt.Errorf("failed to create checkin: %w", err)
	}

	s.logger.Info("Payment settled",
		zap.String("payment_id", payment.PaymentUUID),
		zap.Int64("purchase_id", purchase.ID))
	return nil
}

func (s *ResultService) settleFailure(ctx context.Context, payment *models.Payment, purchase *models.Purchase, status models.PaymentStatus) error {
	// Free the unit first: a crash after rollback leaves a CANCELED update
	// to redo, while the reverse order could strand sold-out inventory.
	if err := s.compensator.Rollback(ctx, purchase.TicketID, purchase.BuyerID); err != nil {
		return fmt.Errorf("failed to compensate reservation: %w", err)
	}
	if err := s.store.UpdatePaymentStatus(ctx, payment.PaymentUUID, status); err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	if err := s.store.UpdatePurchaseStatus(ctx, purchase.ID, models.PurchaseStatusCanceled); err != nil {
		return fmt.Errorf("failed to cancel purchase: %w", err)
	}

	s.logger.Info("Payment failed, reservation compensated",
		zap.String("payment_id", payment.PaymentUUID),
		zap.String("status", string(status)),
		zap.Int64("purchase_id", purchase.ID))
	return nil
}
