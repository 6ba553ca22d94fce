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

// TicketStore is the slice of the store the ticket scheduler needs
type TicketStore interface {
	GetTicket(ctx context.Context, id int64) (*models.Ticket, error)
	CountFreeUnits(ctx context.Context, ticketID int64) (int, error)
}

// TicketInfoCache receives the warmed sale-window and stock snapshot
type TicketInfoCache interface {
	SetTicketInfo(ctx context.Context, info models.TicketScheduleMessage) error
}

// TicketScheduler warms the ticket info cache shortly before a sale opens,
// so the first wave of admission checks hits Redis instead of Postgres.
type TicketScheduler struct {
	store  TicketStore
	cache  TicketInfoCache
	engine *Engine
	lead   time.Duration
	logger *zap.Logger
}

func NewTicketScheduler(store TicketStore, cache TicketInfoCache, engine *Engine, lead time.Duration) *TicketScheduler {
	s := &TicketScheduler{
		store:  store,
		cache:  cache,
		engine: engine,
		lead:   lead,
		logger: util.NamedLogger("ticket-scheduler"),
	}
	engine.RegisterHandler(EventTicketCacheRefresh, s.handleRefresh)
	return s
}

// ScheduleTicket registers the cache refresh at lead time before the sale
// opens. Tickets announced inside the lead window refresh on the next poll.
func (s *TicketScheduler) ScheduleTicket(ctx context.Context, msg models.TicketScheduleMessage) error {
	if err := s.engine.Schedule(ctx, &models.ScheduledTransition{
		SubjectType: SubjectTicket,
		SubjectID:   msg.TicketID,
		EventType:   EventTicketCacheRefresh,
		FireAt:      msg.StartSaleTime.Add(-s.lead),
	}); err != nil {
		return fmt.Errorf("failed to schedule cache refresh: %w", err)
	}
	return nil
}

func (s *TicketScheduler) handleRefresh(ctx context.Context, t models.ScheduledTransition) error {
	ticket, err := s.store.GetTicket(ctx, t.SubjectID)
	if errors.Is(err, models.ErrTicketNotFound) {
		s.logger.Warn("Ticket for due refresh no longer exists",
			zap.Int64("ticket_id", t.SubjectID))
		return nil
	}
	if err != nil {
		// A transient failure must keep the trigger alive for the next poll.
		return fmt.Errorf("failed to load ticket for refresh: %w", err)
	}

	// Count at fire time, not announce time: units may already be reserved
	// when the refresh was registered late.
	remain, err := s.store.CountFreeUnits(ctx, ticket.ID)
	if err != nil {
		return fmt.Errorf("failed to count free units: %w", err)
	}

	if err := s.cache.SetTicketInfo(ctx, models.TicketScheduleMessage{
		TicketID:      ticket.ID,
		StartSaleTime: ticket.StartSaleTime,
		EndSaleTime:   ticket.EndSaleTime,
		RemainStock:   remain,
	}); err != nil {
		return fmt.Errorf("failed to warm ticket cache: %w", err)
	}

	s.logger.Info("Ticket cache warmed",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int("remain_stock", remain))
	return nil
}
