package service

import (
	"context"
	"fmt"

	"festival-ticketing/internal/models"
	"festival-ticketing/internal/util"

	"go.uber.org/zap"
)

// AdminStore is the slice of the store the admin facade needs
type AdminStore interface {
	CreateFestival(ctx context.Context, festival *models.Festival) error
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
}

// AdminService creates festivals and tickets and announces them on the
// schedule streams so the scheduler can register their transitions.
type AdminService struct {
	store          AdminStore
	appender       Appender
	festivalStream string
	ticketStream   string
	logger         *zap.Logger
}

func NewAdminService(store AdminStore, appender Appender, festivalStream, ticketStream string) *AdminService {
	return &AdminService{
		store:          store,
		appender:       appender,
		festivalStream: festivalStream,
		ticketStream:   ticketStream,
		logger:         util.NamedLogger("admin"),
	}
}

// CreateFestival persists the festival in UPCOMING state and announces it.
// A failed announce is returned so the operator can retry; the scheduler's
// startup recovery will also pick the festival up from the database.
func (s *AdminService) CreateFestival(ctx context.Context, festival *models.Festival) error {
	festival.Status = models.FestivalStatusUpcoming
	if err := s.store.CreateFestival(ctx, festival); err != nil {
		return fmt.Errorf("failed to create festival: %w", err)
	}

	msg := models.FestivalScheduleMessage{
		FestivalID: festival.ID,
		StartTime:  festival.StartTime,
		EndTime:    festival.EndTime,
	}
	if _, err := s.appender.Append(ctx, s.festivalStream, msg); err != nil {
		return fmt.Errorf("failed to announce festival %d: %w", festival.ID, err)
	}

	s.logger.Info("Festival created", zap.Int64("festival_id", festival.ID))
	return nil
}

// CreateTicket persists the ticket with its stock units and announces it
func (s *AdminService) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	if err := s.store.CreateTicket(ctx, ticket); err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}

	msg := models.TicketScheduleMessage{
		TicketID:      ticket.ID,
		StartSaleTime: ticket.StartSaleTime,
		EndSaleTime:   ticket.EndSaleTime,
		RemainStock:   ticket.Quantity,
	}
	if _, err := s.appender.Append(ctx, s.ticketStream, msg); err != nil {
		return fmt.Errorf("failed to announce ticket %d: %w", ticket.ID, err)
	}

	s.logger.Info("Ticket created",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int("quantity", ticket.Quantity))
	return nil
}
