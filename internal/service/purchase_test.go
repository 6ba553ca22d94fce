package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"festival-ticketing/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurchaseStore struct {
	ticket    *models.Ticket
	unit      *models.StockUnit
	purchases []*models.Purchase
	statuses  map[string]models.PurchaseStatus
	createErr error
}

func (s *fakePurchaseStore) GetTicket(_ context.Context, id int64) (*models.Ticket, error) {
	if s.ticket == nil || s.ticket.ID != id {
		return nil, models.ErrTicketNotFound
	}
	return s.ticket, nil
}

func (s *fakePurchaseStore) GetStockUnit(_ context.Context, unitID int64) (*models.StockUnit, error) {
	if s.unit == nil || s.unit.ID != unitID {
		return nil, models.ErrStockMismatch
	}
	return s.unit, nil
}

func (s *fakePurchaseStore) CreatePurchaseWithPayment(_ context.Context, purchase *models.Purchase, _ *models.Payment) error {
	if s.createErr != nil {
		return s.createErr
	}
	purchase.ID = int64(len(s.purchases) + 1)
	s.purchases = append(s.purchases, purchase)
	return nil
}

func (s *fakePurchaseStore) GetPurchaseStatusByPaymentUUID(_ context.Context, paymentUUID string) (models.PurchaseStatus, error) {
	status, ok := s.statuses[paymentUUID]
	if !ok {
		return "", models.ErrPurchaseNotFound
	}
	return status, nil
}

type fakeSessionValidator struct {
	session *models.PurchaseSession
}

func (v *fakeSessionValidator) ValidateSession(_ context.Context, _, _ int64, sessionID string) (*models.PurchaseSession, error) {
	if v.session == nil || v.session.SessionID != sessionID {
		return nil, models.ErrPurchaseSessionExpired
	}
	return v.session, nil
}

type fakeAppender struct {
	appends []interface{}
	err     error
}

func (a *fakeAppender) Append(_ context.Context, _ string, payload interface{}) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.appends = append(a.appends, payload)
	return "1-0", nil
}

func purchaseFixture() (*fakePurchaseStore, *fakeSessionValidator, *fakeAppender) {
	store := &fakePurchaseStore{
		ticket: onSaleTicket(1),
		unit: &models.StockUnit{
			ID:       7,
			TicketID: 1,
			BuyerID:  sql.NullInt64{Int64: 42, Valid: true},
		},
		statuses: make(map[string]models.PurchaseStatus),
	}
	sessions := &fakeSessionValidator{
		session: &models.PurchaseSession{
			SessionID: "sess-1",
			TicketID:  1,
			BuyerID:   42,
			StockID:   7,
		},
	}
	return store, sessions, &fakeAppender{}
}

func TestProcessPurchaseEmitsPaymentRequest(t *testing.T) {
	store, sessions, appender := purchaseFixture()
	svc := NewPurchaseService(store, sessions, appender, "payment-request-stream")

	resp, err := svc.ProcessPurchase(context.Background(), &PurchaseRequest{
		TicketID:  1,
		BuyerID:   42,
		SessionID: "sess-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.PaymentID)

	require.Len(t, store.purchases, 1)
	assert.Equal(t, models.PurchaseStatusInitiated, store.purchases[0].Status)

	require.Len(t, appender.appends, 1)
	msg := appender.appends[0].(models.PaymentRequestMessage)
	assert.Equal(t, resp.PaymentID, msg.PaymentID)
	assert.Equal(t, int64(7), msg.StockID)
}

func TestProcessPurchaseRejectsExpiredSession(t *testing.T) {
	store, sessions, appender := purchaseFixture()
	sessions.session = nil
	svc := NewPurchaseService(store, sessions, appender, "payment-request-stream")

	_, err := svc.ProcessPurchase(context.Background(), &PurchaseRequest{
		TicketID:  1,
		BuyerID:   42,
		SessionID: "sess-1",
	})
	assert.ErrorIs(t, err, models.ErrPurchaseSessionExpired)
	assert.Empty(t, store.purchases)
}

func TestProcessPurchaseRejectsClosedSaleWindow(t *testing.T) {
	store, sessions, appender := purchaseFixture()
	store.ticket.EndSaleTime = time.Now().Add(-time.Minute)
	svc := NewPurchaseService(store, sessions, appender, "payment-request-stream")

	_, err := svc.ProcessPurchase(context.Background(), &PurchaseRequest{
		TicketID:  1,
		BuyerID:   42,
		SessionID: "sess-1",
	})
	assert.ErrorIs(t, err, models.ErrInvalidPurchaseTime)
}

func TestProcessPurchaseRejectsReleasedUnit(t *testing.T) {
	store, sessions, appender := purchaseFixture()
	// Compensation freed the unit between admission and commit.
	store.unit.BuyerID = sql.NullInt64{}
	svc := NewPurchaseService(store, sessions, appender, "payment-request-stream")

	_, err := svc.ProcessPurchase(context.Background(), &PurchaseRequest{
		TicketID:  1,
		BuyerID:   42,
		SessionID: "sess-1",
	})
	assert.ErrorIs(t, err, models.ErrStockMismatch)
	assert.Empty(t, store.purchases)
}

func TestProcessPurchaseFailedEmitIsFatal(t *testing.T) {
	store, sessions, appender := purchaseFixture()
	appender.err = assert.AnError
	svc := NewPurchaseService(store, sessions, appender, "payment-request-stream")

	_, err := svc.ProcessPurchase(context.Background(), &PurchaseRequest{
		TicketID:  1,
		BuyerID:   42,
		SessionID: "sess-1",
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestGetPaymentStatus(t *testing.T) {
	store, sessions, appender := purchaseFixture()
	store.statuses["pay-1"] = models.PurchaseStatusPaid
	store.statuses["pay-2"] = models.PurchaseStatusInitiated
	svc := NewPurchaseService(store, sessions, appender, "payment-request-stream")

	resp, err := svc.GetPaymentStatus(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.True(t, resp.Purchased)

	resp, err = svc.GetPaymentStatus(context.Background(), "pay-2")
	require.NoError(t, err)
	assert.False(t, resp.Purchased)

	_, err = svc.GetPaymentStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrPurchaseNotFound)
}
