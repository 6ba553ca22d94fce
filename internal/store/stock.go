package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"festival-ticketing/internal/models"
)

// HasReservation reports whether the buyer already holds a stock unit of the
// ticket.
func (s *Store) HasReservation(ctx context.Context, ticketID, buyerID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM ticket_stock WHERE ticket_id = $1 AND buyer_id = $2)",
		ticketID, buyerID)
	return exists, err
}

// ReserveUnit locks one free unit of the ticket (FOR UPDATE SKIP LOCKED) and
// marks it reserved by the buyer. Skipping locked rows sends concurrent
// buyers to different units instead of queueing them on the lowest one.
// Returns ok=false when the ticket is sold out, which
// is the normal outcome of losing the race, not an error. A concurrent
// duplicate reservation by the same buyer surfaces synchronously as
// ErrAlreadyReserved through the partial unique index on (ticket_id,
// buyer_id).
func (s *Store) ReserveUnit(ctx context.Context, ticketID, buyerID int64, now time.Time) (int64, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	var unitID int64
	err = tx.GetContext(ctx, &unitID,
		"SELECT id FROM ticket_stock WHERE ticket_id = $1 AND buyer_id IS NULL ORDER BY id LIMIT 1 FOR UPDATE SKIP LOCKED",
		ticketID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to lock free stock unit: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE ticket_stock SET buyer_id = $1, reserved_at = $2 WHERE id = $3",
		buyerID, now, unitID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, false, models.ErrAlreadyReserved
		}
		return 0, false, fmt.Errorf("failed to reserve stock unit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return 0, false, models.ErrAlreadyReserved
		}
		return 0, false, fmt.Errorf("failed to commit reservation: %w", err)
	}
	return unitID, true, nil
}

// ReleaseUnitByBuyer frees the exact unit the buyer holds on the ticket.
// Releasing an already-free unit is a no-op, so double compensation for the
// same failed payment is safe.
func (s *Store) ReleaseUnitByBuyer(ctx context.Context, ticketID, buyerID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE ticket_stock SET buyer_id = NULL, reserved_at = NULL WHERE ticket_id = $1 AND buyer_id = $2",
		ticketID, buyerID)
	if err != nil {
		return fmt.Errorf("failed to release stock unit: %w", err)
	}
	return nil
}

// CountFreeUnits returns the number of unreserved units of a ticket
func (s *Store) CountFreeUnits(ctx context.Context, ticketID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM ticket_stock WHERE ticket_id = $1 AND buyer_id IS NULL", ticketID)
	return count, err
}

// GetStockUnit retrieves a stock unit by id
func (s *Store) GetStockUnit(ctx context.Context, unitID int64) (*models.StockUnit, error) {
	var unit models.StockUnit
	err := s.db.GetContext(ctx, &unit, "SELECT * FROM ticket_stock WHERE id = $1", unitID)
	if err == sql.ErrNoRows {
		return nil, models.ErrStockMismatch
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}
