package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"festival-ticketing/internal/models"
	"festival-ticketing/internal/scheduler"
	"festival-ticketing/internal/stream"
)

// FestivalScheduleHandler routes festival announcements into the trigger
// engine. Registration is idempotent, so redelivered announcements are safe.
func FestivalScheduleHandler(sched *scheduler.FestivalScheduler) stream.HandlerFunc {
	return func(ctx context.Context, msg stream.Message) error {
		var announce models.FestivalScheduleMessage
		if err := json.Unmarshal(msg.Payload, &announce); err != nil {
			return fmt.Errorf("failed to decode festival announcement %s: %w", msg.ID, err)
		}
		return sched.ScheduleFestival(ctx, announce)
	}
}

// TicketScheduleHandler routes ticket announcements into the trigger engine
func TicketScheduleHandler(sched *scheduler.TicketScheduler) stream.HandlerFunc {
	return func(ctx context.Context, msg stream.Message) error {
		var announce models.TicketScheduleMessage
		if err := json.Unmarshal(msg.Payload, &announce); err != nil {
			return fmt.Errorf("failed to decode ticket announcement %s: %w", msg.ID, err)
		}
		return sched.ScheduleTicket(ctx, announce)
	}
}
