package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"festival-ticketing/internal/models"
)

// CreateFestival inserts a festival in UPCOMING state
func (s *Store) CreateFestival(ctx context.Context, festival *models.Festival) error {
	query := `
		INSERT INTO festivals (title, start_time, end_time, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, festival, query,
		festival.Title, festival.StartTime, festival.EndTime, festival.Status)
}

// GetFestival retrieves a festival by ID
func (s *Store) GetFestival(ctx context.Context, id int64) (*models.Festival, error) {
	var festival models.Festival
	err := s.db.GetContext(ctx, &festival, "SELECT * FROM festivals WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrFestivalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &festival, nil
}

// TransitionFestivalStatus moves a festival forward, holding the row lock for
// the duration of the check-and-set. Backward or in-place transitions return
// ErrInvalidStatusTransition.
func (s *Store) TransitionFestivalStatus(ctx context.Context, festivalID int64, target models.FestivalStatus) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current models.FestivalStatus
	err = tx.GetContext(ctx, &current,
		"SELECT status FROM festivals WHERE id = $1 FOR UPDATE", festivalID)
	if err == sql.ErrNoRows {
		return models.ErrFestivalNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock festival: %w", err)
	}

	if !current.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidStatusTransition, current, target)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE festivals SET status = $1, updated_at = NOW() WHERE id = $2",
		target, festivalID)
	if err != nil {
		return fmt.Errorf("failed to update festival status: %w", err)
	}

	return tx.Commit()
}

// BulkAdvanceFestivalStatuses applies the time-filtered catch-up updates run
// on scheduler start: everything past its end time completes, everything past
// its start time begins.
func (s *Store) BulkAdvanceFestivalStatuses(ctx context.Context, now time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"UPDATE festivals SET status = $1, updated_at = NOW() WHERE end_time <= $2 AND status <> $1",
		models.FestivalStatusCompleted, now)
	if err != nil {
		return fmt.Errorf("failed to complete past festivals: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE festivals SET status = $1, updated_at = NOW() WHERE start_time <= $2 AND end_time > $2 AND status = $3",
		models.FestivalStatusOngoing, now, models.FestivalStatusUpcoming)
	if err != nil {
		return fmt.Errorf("failed to start ongoing festivals: %w", err)
	}

	return tx.Commit()
}

// ListUnfinishedFestivals returns every festival that still needs future
// transitions (anything not COMPLETED). Used to re-derive triggers on start.
func (s *Store) ListUnfinishedFestivals(ctx context.Context) ([]models.Festival, error) {
	var festivals []models.Festival
	err := s.db.SelectContext(ctx, &festivals,
		"SELECT * FROM festivals WHERE status <> $1 ORDER BY id", models.FestivalStatusCompleted)
	return festivals, err
}
