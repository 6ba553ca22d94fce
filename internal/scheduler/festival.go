package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"festival-ticketing/internal/models"
	"festival-ticketing/internal/util"

	"go.uber.org/zap"
)

// Event types routed by the engine
const (
	EventFestivalStart      = "festival-start"
	EventFestivalEnd        = "festival-end"
	EventTicketCacheRefresh = "ticket-cache-refresh"
)

// Subject types stored with each transition
const (
	SubjectFestival = "festival"
	SubjectTicket   = "ticket"
)

// FestivalStore is the slice of the store the festival scheduler needs
type FestivalStore interface {
	TransitionFestivalStatus(ctx context.Context, festivalID int64, target models.FestivalStatus) error
	BulkAdvanceFestivalStatuses(ctx context.Context, now time.Time) error
	ListUnfinishedFestivals(ctx context.Context) ([]models.Festival, error)
	DeleteTransition(ctx context.Context, subjectType string, subjectID int64, eventType string) error
}

// FestivalScheduler drives festival lifecycle transitions: it registers
// start/end triggers for announced festivals and applies them when due.
type FestivalScheduler struct {
	store  FestivalStore
	engine *Engine
	logger *zap.Logger
}

func NewFestivalScheduler(store FestivalStore, engine *Engine) *FestivalScheduler {
	s := &FestivalScheduler{
		store:  store,
		engine: engine,
		logger: util.NamedLogger("festival-scheduler"),
	}
	engine.RegisterHandler(EventFestivalStart, s.handleStart)
	engine.RegisterHandler(EventFestivalEnd, s.handleEnd)
	return s
}

// ScheduleFestival registers both lifecycle transitions for an announced
// festival. Past fire times are fine; they fire on the next poll.
func (s *FestivalScheduler) ScheduleFestival(ctx context.Context, msg models.FestivalScheduleMessage) error {
	if err := s.engine.Schedule(ctx, &models.ScheduledTransition{
		SubjectType: SubjectFestival,
		SubjectID:   msg.FestivalID,
		EventType:   EventFestivalStart,
		FireAt:      msg.StartTime,
	}); err != nil {
		return fmt.Errorf("failed to schedule festival start: %w", err)
	}
	if err := s.engine.Schedule(ctx, &models.ScheduledTransition{
		SubjectType: SubjectFestival,
		SubjectID:   msg.FestivalID,
		EventType:   EventFestivalEnd,
		FireAt:      msg.EndTime,
	}); err != nil {
		return fmt.Errorf("failed to schedule festival end: %w", err)
	}
	return nil
}

func (s *FestivalScheduler) handleStart(ctx context.Context, t models.ScheduledTransition) error {
	return s.applyTransition(ctx, t.SubjectID, models.FestivalStatusOngoing)
}

func (s *FestivalScheduler) handleEnd(ctx context.Context, t models.ScheduledTransition) error {
	return s.applyTransition(ctx, t.SubjectID, models.FestivalStatusCompleted)
}

func (s *FestivalScheduler) applyTransition(ctx context.Context, festivalID int64, target models.FestivalStatus) error {
	err := s.store.TransitionFestivalStatus(ctx, festivalID, target)
	switch {
	case errors.Is(err, models.ErrInvalidStatusTransition):
		// Already at or past the target, for example after the startup
		// catch-up advanced it in bulk. The trigger has nothing left to do.
		s.logger.Info("Festival already past target status",
			zap.Int64("festival_id", festivalID),
			zap.String("target", string(target)))
		return nil
	case errors.Is(err, models.ErrFestivalNotFound):
		s.logger.Warn("Festival for due transition no longer exists",
			zap.Int64("festival_id", festivalID))
		return nil
	case err != nil:
		return err
	}

	s.logger.Info("Festival status advanced",
		zap.Int64("festival_id", festivalID),
		zap.String("status", string(target)))
	return nil
}

// RecoverAll is the startup catch-up: bulk-advance statuses past their
// times, then re-register triggers for every festival that still has
// transitions ahead of it. Registration is idempotent, so recovering on top
// of surviving trigger rows is harmless.
func (s *FestivalScheduler) RecoverAll(ctx context.Context) error {
	now := time.Now()
	if err := s.store.BulkAdvanceFestivalStatuses(ctx, now); err != nil {
		return fmt.Errorf("failed to advance festival statuses: %w", err)
	}

	festivals, err := s.store.ListUnfinishedFestivals(ctx)
	if err != nil {
		return fmt.Errorf("failed to list unfinished festivals: %w", err)
	}

	for _, f := range festivals {
		if f.Status == models.FestivalStatusUpcoming {
			if err := s.engine.Schedule(ctx, &models.ScheduledTransition{
				SubjectType: SubjectFestival,
				SubjectID:   f.ID,
				EventType:   EventFestivalStart,
				FireAt:      f.StartTime,
			}); err != nil {
				return fmt.Errorf("failed to schedule festival start: %w", err)
			}
		} else {
			// The bulk advance moved this festival past its start, so a
			// surviving start trigger has nothing left to fire.
			if err := s.store.DeleteTransition(ctx, SubjectFestival, f.ID, EventFestivalStart); err != nil {
				return fmt.Errorf("failed to drop stale start trigger: %w", err)
			}
		}
		if err := s.engine.Schedule(ctx, &models.ScheduledTransition{
			SubjectType: SubjectFestival,
			SubjectID:   f.ID,
			EventType:   EventFestivalEnd,
			FireAt:      f.EndTime,
		}); err != nil {
			return fmt.Errorf("failed to schedule festival end: %w", err)
		}
		util.TransitionsRecoveredTotal.Inc()
	}

	s.logger.Info("Festival schedule recovered", zap.Int("festivals", len(festivals)))
	return nil
}
