package service

import (
	"context"
	"fmt"
	"time"

	"festival-ticketing/internal/models"
	"festival-ticketing/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PurchaseStore is the slice of the store the purchase facade needs
type PurchaseStore interface {
	GetTicket(ctx context.Context, id int64) (*models.Ticket, error)
	GetStockUnit(ctx context.Context, unitID int64) (*models.StockUnit, error)
	CreatePurchaseWithPayment(ctx context.Context, purchase *models.Purchase, payment *models.Payment) error
	GetPurchaseStatusByPaymentUUID(ctx context.Context, paymentUUID string) (models.PurchaseStatus, error)
}

// SessionValidator proves the caller holds the session admission issued
type SessionValidator interface {
	ValidateSession(ctx context.Context, ticketID, buyerID int64, sessionID string) (*models.PurchaseSession, error)
}

// Appender writes a message to an event stream
type Appender interface {
	Append(ctx context.Context, stream string, payload interface{}) (string, error)
}

// PurchaseService commits an admitted buyer: it records the purchase and
// payment rows and hands the payment off to the asynchronous saga.
type PurchaseService struct {
	store         PurchaseStore
	sessions      SessionValidator
	appender      Appender
	requestStream string
	logger        *zap.Logger
}

func NewPurchaseService(store PurchaseStore, sessions SessionValidator, appender Appender, requestStream string) *PurchaseService {
	return &PurchaseService{
		store:         store,
		sessions:      sessions,
		appender:      appender,
		requestStream: requestStream,
		logger:        util.NamedLogger("purchase"),
	}
}

// PurchaseRequest is the committed purchase call
type PurchaseRequest struct {
	TicketID  int64  `json:"ticket_id" binding:"required"`
	BuyerID   int64  `json:"buyer_id" binding:"required"`
	SessionID string `json:"purchase_session" binding:"required"`
}

// PurchaseResponse returns the payment handle for later status polling
type PurchaseResponse struct {
	PaymentID string `json:"payment_id"`
}

// ProcessPurchase validates the session and sale window, persists the
// purchase and payment atomically, then emits the payment request. A failed
// emit is fatal: without the log entry the saga would never run, so the
// caller must see the error rather than a dangling INITIATED purchase.
func (s *PurchaseService) ProcessPurchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResponse, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.ProcessPurchase")
	defer span.End()

	session, err := s.sessions.ValidateSession(ctx, req.TicketID, req.BuyerID, req.SessionID)
	if err != nil {
		return nil, err
	}

	ticket, err := s.store.GetTicket(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	if !ticket.IsOnSale(time.Now()) {
		return nil, models.ErrInvalidPurchaseTime
	}

	// The session's unit must still be held by this buyer for this ticket.
	// A compensated or expired reservation fails here rather than producing
	// a purchase against stock the buyer no longer holds.
	unit, err := s.store.GetStockUnit(ctx, session.StockID)
	if err != nil {
		return nil, err
	}
	if unit.TicketID != req.TicketID || !unit.BuyerID.Valid || unit.BuyerID.Int64 != req.BuyerID {
		return nil, models.ErrStockMismatch
	}

	paymentID := uuid.New().String()
	now := time.Now()
	purchase := &models.Purchase{
		PaymentUUID:  paymentID,
		TicketID:     req.TicketID,
		BuyerID:      req.BuyerID,
		Status:       models.PurchaseStatusInitiated,
		PurchaseTime: now,
	}
	payment := &models.Payment{
		PaymentUUID: paymentID,
		Status:      models.PaymentStatusInitiated,
		PaymentTime: now,
	}
	if err := s.store.CreatePurchaseWithPayment(ctx, purchase, payment); err != nil {
		return nil, err
	}

	msg := models.PaymentRequestMessage{
		PaymentID: paymentID,
		BuyerID:   req.BuyerID,
		TicketID:  req.TicketID,
		StockID:   session.StockID,
	}
	if _, err := s.appender.Append(ctx, s.requestStream, msg); err != nil {
		return nil, fmt.Errorf("failed to emit payment request for %s: %w", paymentID, err)
	}

	s.logger.Info("Purchase committed",
		zap.String("payment_id", paymentID),
		zap.Int64("ticket_id", req.TicketID),
		zap.Int64("buyer_id", req.BuyerID))

	return &PurchaseResponse{PaymentID: paymentID}, nil
}

// PaymentStatusResponse reports whether the purchase behind a payment is
// finalized yet
type PaymentStatusResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Purchased bool   `json:"purchased"`
}

// GetPaymentStatus answers the buyer's polling call after ProcessPurchase
func (s *PurchaseService) GetPaymentStatus(ctx context.Context, paymentID string) (*PaymentStatusResponse, error) {
	status, err := s.store.GetPurchaseStatusByPaymentUUID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return &PaymentStatusResponse{
		PaymentID: paymentID,
		Status:    string(status),
		Purchased: status.IsPurchased(),
	}, nil
}
