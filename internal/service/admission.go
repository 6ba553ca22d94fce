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

// AdmissionStore is the slice of the store the admission service needs
type AdmissionStore interface {
	GetTicket(ctx context.Context, id int64) (*models.Ticket, error)
	HasBlockingPurchase(ctx context.Context, ticketID, buyerID int64) (bool, error)
	HasReservation(ctx context.Context, ticketID, buyerID int64) (bool, error)
	ReserveUnit(ctx context.Context, ticketID, buyerID int64, now time.Time) (int64, bool, error)
	ReleaseUnitByBuyer(ctx context.Context, ticketID, buyerID int64) error
	CountFreeUnits(ctx context.Context, ticketID int64) (int, error)
}

// SessionCache holds purchase sessions keyed by (ticket, buyer) and the
// warmed ticket info written by the scheduler
type SessionCache interface {
	AddPurchaseSession(ctx context.Context, session models.PurchaseSession, ttl time.Duration) error
	GetPurchaseSession(ctx context.Context, ticketID, buyerID int64) (*models.PurchaseSession, error)
	GetTicketRemainStock(ctx context.Context, ticketID int64) (int, bool, error)
	AdjustTicketRemainStock(ctx context.Context, ticketID int64, delta int64) error
}

// AdmissionService decides whether a buyer may enter the purchase flow.
// Admission reserves one concrete stock unit under a row lock, so a positive
// answer is a guarantee, not an estimate.
type AdmissionService struct {
	store      AdmissionStore
	sessions   SessionCache
	sessionTTL time.Duration
	logger     *zap.Logger
}

func NewAdmissionService(store AdmissionStore, sessions SessionCache, sessionTTL time.Duration) *AdmissionService {
	return &AdmissionService{
		store:      store,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		logger:     util.NamedLogger("admission"),
	}
}

// CheckPurchasableResponse is the admission verdict. Purchasable false with
// a nil error means the ticket sold out; the session ID is only set on
// successful admission.
type CheckPurchasableResponse struct {
	Purchasable bool   `json:"purchasable"`
	SessionID   string `json:"purchase_session,omitempty"`
}

// CheckPurchasable runs the admission sequence: sale window, duplicate
// purchase, duplicate reservation, then unit reservation and session issue.
func (s *AdmissionService) CheckPurchasable(ctx context.Context, ticketID, buyerID int64) (*CheckPurchasableResponse, error) {
	ctx, span := util.StartSpan(ctx, "AdmissionService.CheckPurchasable")
	defer span.End()

	util.ReservationAttemptsTotal.Inc()
	timer := time.Now()

	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		util.ReservationsFailedTotal.WithLabelValues("ticket_not_found").Inc()
		return nil, err
	}

	now := time.Now()
	if !ticket.IsOnSale(now) {
		util.ReservationsFailedTotal.WithLabelValues("outside_sale_window").Inc()
		return nil, models.ErrInvalidPurchaseTime
	}

	blocked, err := s.store.HasBlockingPurchase(ctx, ticketID, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check purchase history: %w", err)
	}
	if blocked {
		util.ReservationsFailedTotal.WithLabelValues("already_purchased").Inc()
		return nil, models.ErrAlreadyPurchased
	}

	reserved, err := s.store.HasReservation(ctx, ticketID, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check reservation: %w", err)
	}
	if reserved {
		util.ReservationsFailedTotal.WithLabelValues("already_reserved").Inc()
		return nil, models.ErrAlreadyReserved
	}

	stockID, ok, err := s.store.ReserveUnit(ctx, ticketID, buyerID, now)
	if err != nil {
		util.ReservationsFailedTotal.WithLabelValues("reserve_failed").Inc()
		return nil, err
	}
	if !ok {
		// Sold out is a normal verdict, not a failure.
		s.logger.Info("Ticket sold out",
			zap.Int64("ticket_id", ticketID),
			zap.Int64("buyer_id", buyerID))
		return &CheckPurchasableResponse{Purchasable: false}, nil
	}

	session := models.PurchaseSession{
		SessionID: uuid.New().String(),
		TicketID:  ticketID,
		BuyerID:   buyerID,
		StockID:   stockID,
	}
	if err := s.sessions.AddPurchaseSession(ctx, session, s.sessionTTL); err != nil {
		// The unit is reserved but the buyer never got a session, so the
		// reservation must not outlive this request.
		if relErr := s.store.ReleaseUnitByBuyer(ctx, ticketID, buyerID); relErr != nil {
			s.logger.Error("Failed to release unit after session write failure",
				zap.Int64("ticket_id", ticketID),
				zap.Int64("buyer_id", buyerID),
				zap.Error(relErr))
		}
		util.ReservationsFailedTotal.WithLabelValues("session_write_failed").Inc()
		return nil, fmt.Errorf("failed to store purchase session: %w", err)
	}

	// Keep the warmed stock count honest. The cache is advisory, so a
	// failed adjustment is logged rather than failing the admission.
	if err := s.sessions.AdjustTicketRemainStock(ctx, ticketID, -1); err != nil {
		s.logger.Warn("Failed to decrement cached stock",
			zap.Int64("ticket_id", ticketID), zap.Error(err))
	}

	util.ReservationsSucceededTotal.Inc()
	util.ReservationLatency.Observe(time.Since(timer).Seconds())
	s.logger.Info("Admission granted",
		zap.Int64("ticket_id", ticketID),
		zap.Int64("buyer_id", buyerID),
		zap.Int64("stock_id", stockID))

	return &CheckPurchasableResponse{Purchasable: true, SessionID: session.SessionID}, nil
}

// ValidateSession checks that the caller presents the session issued to this
// (ticket, buyer) pair. Expired, missing, and mismatched sessions are all
// reported the same way so callers cannot probe for other buyers' sessions.
func (s *AdmissionService) ValidateSession(ctx context.Context, ticketID, buyerID int64, sessionID string) (*models.PurchaseSession, error) {
	session, err := s.sessions.GetPurchaseSession(ctx, ticketID, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase session: %w", err)
	}
	if session == nil || session.SessionID != sessionID {
		return nil, models.ErrPurchaseSessionExpired
	}
	return session, nil
}

// RemainingStock reports how many units of a ticket are still free. It
// serves the warmed cache when present and falls back to counting rows.
func (s *AdmissionService) RemainingStock(ctx context.Context, ticketID int64) (int, error) {
	remain, cached, err := s.sessions.GetTicketRemainStock(ctx, ticketID)
	if err == nil && cached {
		return remain, nil
	}
	if err != nil {
		s.logger.Warn("Ticket cache read failed, falling back to database",
			zap.Int64("ticket_id", ticketID), zap.Error(err))
	}

	if _, err := s.store.GetTicket(ctx, ticketID); err != nil {
		return 0, err
	}
	return s.store.CountFreeUnits(ctx, ticketID)
}

// Rollback compensates a failed downstream step by freeing the buyer's
// reserved unit. The partial unique index guarantees at most one row
// matches, so this releases exactly the unit admission granted.
func (s *AdmissionService) Rollback(ctx context.Context, ticketID, buyerID int64) error {
	ctx, span := util.StartSpan(ctx, "AdmissionService.Rollback")
	defer span.End()

	if err := s.store.ReleaseUnitByBuyer(ctx, ticketID, buyerID); err != nil {
		return fmt.Errorf("failed to release stock unit: %w", err)
	}
	if err := s.sessions.AdjustTicketRemainStock(ctx, ticketID, 1); err != nil {
		s.logger.Warn("Failed to increment cached stock",
			zap.Int64("ticket_id", ticketID), zap.Error(err))
	}
	util.CompensationsTotal.Inc()
	s.logger.Info("Reservation rolled back",
		zap.Int64("ticket_id", ticketID),
		zap.Int64("buyer_id", buyerID))
	return nil
}
