package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"festival-ticketing/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdmissionStore is an in-memory stand-in with the same locking
// discipline as the real store: one mutex guards reserve/release so only
// one reservation can win a free unit.
type fakeAdmissionStore struct {
	mu        sync.Mutex
	ticket    *models.Ticket
	freeUnits []int64
	holders   map[int64]int64 // buyerID -> stockID
	purchased map[int64]bool
}

func newFakeAdmissionStore(ticket *models.Ticket, units int) *fakeAdmissionStore {
	s := &fakeAdmissionStore{
		ticket:    ticket,
		holders:   make(map[int64]int64),
		purchased: make(map[int64]bool),
	}
	for i := 0; i < units; i++ {
		s.freeUnits = append(s.freeUnits, int64(i+1))
	}
	return s
}

func (s *fakeAdmissionStore) GetTicket(_ context.Context, id int64) (*models.Ticket, error) {
	if s.ticket == nil || s.ticket.ID != id {
		return nil, models.ErrTicketNotFound
	}
	return s.ticket, nil
}

func (s *fakeAdmissionStore) HasBlockingPurchase(_ context.Context, _, buyerID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purchased[buyerID], nil
}

func (s *fakeAdmissionStore) HasReservation(_ context.Context, _, buyerID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.holders[buyerID]
	return ok, nil
}

func (s *fakeAdmissionStore) ReserveUnit(_ context.Context, _, buyerID int64, _ time.Time) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holders[buyerID]; ok {
		return 0, false, models.ErrAlreadyReserved
	}
	if len(s.freeUnits) == 0 {
		return 0, false, nil
	}
	stockID := s.freeUnits[0]
	s.freeUnits = s.freeUnits[1:]
	s.holders[buyerID] = stockID
	return stockID, true, nil
}

func (s *fakeAdmissionStore) ReleaseUnitByBuyer(_ context.Context, _, buyerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stockID, ok := s.holders[buyerID]; ok {
		delete(s.holders, buyerID)
		s.freeUnits = append(s.freeUnits, stockID)
	}
	return nil
}

func (s *fakeAdmissionStore) CountFreeUnits(_ context.Context, _ int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.freeUnits), nil
}

type fakeSessionCache struct {
	mu          sync.Mutex
	sessions    map[string]models.PurchaseSession
	failPut     bool
	remainStock int
	hasRemain   bool
}

func newFakeSessionCache() *fakeSessionCache {
	return &fakeSessionCache{sessions: make(map[string]models.PurchaseSession)}
}

func cacheKey(ticketID, buyerID int64) string {
	return fmt.Sprintf("%d:%d", ticketID, buyerID)
}

func (c *fakeSessionCache) AddPurchaseSession(_ context.Context, session models.PurchaseSession, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failPut {
		return assert.AnError
	}
	c.sessions[cacheKey(session.TicketID, session.BuyerID)] = session
	return nil
}

func (c *fakeSessionCache) GetPurchaseSession(_ context.Context, ticketID, buyerID int64) (*models.PurchaseSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, ok := c.sessions[cacheKey(ticketID, buyerID)]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (c *fakeSessionCache) GetTicketRemainStock(_ context.Context, _ int64) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainStock, c.hasRemain, nil
}

func (c *fakeSessionCache) AdjustTicketRemainStock(_ context.Context, _ int64, delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasRemain {
		c.remainStock += int(delta)
	}
	return nil
}

func onSaleTicket(id int64) *models.Ticket {
	return &models.Ticket{
		ID:            id,
		Name:          "early-bird",
		StartSaleTime: time.Now().Add(-time.Hour),
		EndSaleTime:   time.Now().Add(time.Hour),
	}
}

func TestCheckPurchasableGrantsSession(t *testing.T) {
	store := newFakeAdmissionStore(onSaleTicket(1), 5)
	cache := newFakeSessionCache()
	svc := NewAdmissionService(store, cache, 5*time.Minute)

	resp, err := svc.CheckPurchasable(context.Background(), 1, 42)
	require.NoError(t, err)
	assert.True(t, resp.Purchasable)
	assert.NotEmpty(t, resp.SessionID)

	session, err := svc.ValidateSession(context.Background(), 1, 42, resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), session.BuyerID)
	assert.NotZero(t, session.StockID)
}

func TestCheckPurchasableSoldOutIsNotAnError(t *testing.T) {
	store := newFakeAdmissionStore(onSaleTicket(1), 0)
	svc := NewAdmissionService(store, newFakeSessionCache(), 5*time.Minute)

	resp, err := svc.CheckPurchasable(context.Background(), 1, 42)
	require.NoError(t, err)
	assert.False(t, resp.Purchasable)
	assert.Empty(t, resp.SessionID)
}

func TestCheckPurchasableOutsideSaleWindow(t *testing.T) {
	ticket := onSaleTicket(1)
	ticket.StartSaleTime = time.Now().Add(time.Hour)
	ticket.EndSaleTime = time.Now().Add(2 * time.Hour)
	svc := NewAdmissionService(newFakeAdmissionStore(ticket, 5), newFakeSessionCache(), 5*time.Minute)

	_, err := svc.CheckPurchasable(context.Background(), 1, 42)
	assert.ErrorIs(t, err, models.ErrInvalidPurchaseTime)
}

func TestCheckPurchasableRejectsDuplicates(t *testing.T) {
	store := newFakeAdmissionStore(onSaleTicket(1), 5)
	svc := NewAdmissionService(store, newFakeSessionCache(), 5*time.Minute)

	_, err := svc.CheckPurchasable(context.Background(), 1, 42)
	require.NoError(t, err)

	_, err = svc.CheckPurchasable(context.Background(), 1, 42)
	assert.ErrorIs(t, err, models.ErrAlreadyReserved)

	store.purchased[43] = true
	_, err = svc.CheckPurchasable(context.Background(), 1, 43)
	assert.ErrorIs(t, err, models.ErrAlreadyPurchased)
}

func TestCheckPurchasableReleasesUnitOnSessionWriteFailure(t *testing.T) {
	store := newFakeAdmissionStore(onSaleTicket(1), 1)
	cache := newFakeSessionCache()
	cache.failPut = true
	svc := NewAdmissionService(store, cache, 5*time.Minute)

	_, err := svc.CheckPurchasable(context.Background(), 1, 42)
	require.Error(t, err)

	// The failed admission must not leak the unit.
	assert.Len(t, store.freeUnits, 1)
	assert.Empty(t, store.holders)
}

func TestCheckPurchasableNeverOversells(t *testing.T) {
	const units = 10
	const buyers = 50

	store := newFakeAdmissionStore(onSaleTicket(1), units)
	svc := NewAdmissionService(store, newFakeSessionCache(), 5*time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for b := 1; b <= buyers; b++ {
		wg.Add(1)
		go func(buyerID int64) {
			defer wg.Done()
			resp, err := svc.CheckPurchasable(context.Background(), 1, buyerID)
			if err == nil && resp.Purchasable {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}(int64(b))
	}
	wg.Wait()

	assert.Equal(t, units, granted)
	assert.Empty(t, store.freeUnits)
}

func TestRemainingStockPrefersCache(t *testing.T) {
	store := newFakeAdmissionStore(onSaleTicket(1), 5)
	cache := newFakeSessionCache()
	cache.remainStock = 3
	cache.hasRemain = true
	svc := NewAdmissionService(store, cache, 5*time.Minute)

	remain, err := svc.RemainingStock(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, remain)

	// Cold cache falls back to counting rows.
	cache.hasRemain = false
	remain, err = svc.RemainingStock(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, remain)

	_, err = svc.RemainingStock(context.Background(), 99)
	assert.ErrorIs(t, err, models.ErrTicketNotFound)
}

func TestRemainingStockTracksReservationsAndRollbacks(t *testing.T) {
	store := newFakeAdmissionStore(onSaleTicket(1), 100)
	cache := newFakeSessionCache()
	cache.remainStock = 100
	cache.hasRemain = true
	svc := NewAdmissionService(store, cache, 5*time.Minute)

	resp, err := svc.CheckPurchasable(context.Background(), 1, 42)
	require.NoError(t, err)
	require.True(t, resp.Purchasable)

	// One unit is held, so the warmed count must already reflect it.
	remain, err := svc.RemainingStock(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 99, remain)

	require.NoError(t, svc.Rollback(context.Background(), 1, 42))

	remain, err = svc.RemainingStock(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 100, remain)
}

func TestValidateSessionRejectsMismatch(t *testing.T) {
	store := newFakeAdmissionStore(onSaleTicket(1), 5)
	cache := newFakeSessionCache()
	svc := NewAdmissionService(store, cache, 5*time.Minute)

	resp, err := svc.CheckPurchasable(context.Background(), 1, 42)
	require.NoError(t, err)

	_, err = svc.ValidateSession(context.Background(), 1, 42, "forged-"+resp.SessionID)
	assert.ErrorIs(t, err, models.ErrPurchaseSessionExpired)

	_, err = svc.ValidateSession(context.Background(), 1, 99, resp.SessionID)
	assert.ErrorIs(t, err, models.ErrPurchaseSessionExpired)
}

func TestRollbackFreesUnit(t *testing.T) {
	store := newFakeAdmissionStore(onSaleTicket(1), 1)
	svc := NewAdmissionService(store, newFakeSessionCache(), 5*time.Minute)

	resp, err := svc.CheckPurchasable(context.Background(), 1, 42)
	require.NoError(t, err)
	require.True(t, resp.Purchasable)

	require.NoError(t, svc.Rollback(context.Background(), 1, 42))

	resp, err = svc.CheckPurchasable(context.Background(), 1, 43)
	require.NoError(t, err)
	assert.True(t, resp.Purchasable)
}
