package store

import (
	"context"
	"fmt"
	"time"

	"festival-ticketing/internal/models"
)

// InsertTransition registers a scheduled transition. Registration is
// idempotent on (subject_type, subject_id, event_type); re-registering an
// existing transition is a no-op and returns false.
func (s *Store) InsertTransition(ctx context.Context, t *models.ScheduledTransition) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_transitions (subject_type, subject_id, event_type, fire_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_type, subject_id, event_type) DO NOTHING`,
		t.SubjectType, t.SubjectID, t.EventType, t.FireAt)
	if err != nil {
		return false, fmt.Errorf("failed to register transition: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// DeleteTransition removes a registration before it fires. Deleting a row
// that already fired (or never existed) is a no-op.
func (s *Store) DeleteTransition(ctx context.Context, subjectType string, subjectID int64, eventType string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM scheduled_transitions
		WHERE subject_type = $1 AND subject_id = $2 AND event_type = $3`,
		subjectType, subjectID, eventType)
	return err
}

// ClaimDue locks up to limit due transitions, runs fn on each, and deletes
// the rows whose handler returned nil. Everything happens in one transaction
// with SKIP LOCKED so concurrent scheduler instances never fire the same row
// twice. A failed handler leaves its row in place for the next poll.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int, fn func(models.ScheduledTransition) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var due []models.ScheduledTransition
	err = tx.SelectContext(ctx, &due, `
		SELECT * FROM scheduled_transitions
		WHERE fire_at <= $1
		ORDER BY fire_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		now, limit)
	if err != nil {
		return fmt.Errorf("failed to claim due transitions: %w", err)
	}

	for _, t := range due {
		if err := fn(t); err != nil {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM scheduled_transitions WHERE id = $1", t.ID); err != nil {
			return fmt.Errorf("failed to delete fired transition: %w", err)
		}
	}

	return tx.Commit()
}
