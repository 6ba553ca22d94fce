package scheduler

import (
	"context"
	"time"

	"festival-ticketing/internal/models"
	"festival-ticketing/internal/util"

	"go.uber.org/zap"
)

// TriggerStore is the durable registry of scheduled transitions
type TriggerStore interface {
	InsertTransition(ctx context.Context, t *models.ScheduledTransition) (bool, error)
	ClaimDue(ctx context.Context, now time.Time, limit int, fn func(models.ScheduledTransition) error) error
}

// TransitionHandler fires when a registered transition comes due
type TransitionHandler func(ctx context.Context, t models.ScheduledTransition) error

// Engine polls the trigger store and dispatches due transitions to the
// handler registered for their event type. Transitions whose fire time
// already passed fire on the very next poll, which is how misfires after a
// crash catch up.
type Engine struct {
	store        TriggerStore
	handlers     map[string]TransitionHandler
	pollInterval time.Duration
	claimBatch   int
	logger       *zap.Logger
}

func NewEngine(store TriggerStore, pollInterval time.Duration, claimBatch int) *Engine {
	return &Engine{
		store:        store,
		handlers:     make(map[string]TransitionHandler),
		pollInterval: pollInterval,
		claimBatch:   claimBatch,
		logger:       util.NamedLogger("scheduler"),
	}
}

// RegisterHandler binds an event type to its handler. Must be called before
// Run; the handler map is not guarded.
func (e *Engine) RegisterHandler(eventType string, handler TransitionHandler) {
	e.handlers[eventType] = handler
}

// Schedule registers a transition. Re-registering the same
// (subject, event) is a no-op, so producers may announce the same subject
// any number of times.
func (e *Engine) Schedule(ctx context.Context, t *models.ScheduledTransition) error {
	inserted, err := e.store.InsertTransition(ctx, t)
	if err != nil {
		return err
	}
	if inserted {
		e.logger.Info("Transition scheduled",
			zap.String("subject_type", t.SubjectType),
			zap.Int64("subject_id", t.SubjectID),
			zap.String("event_type", t.EventType),
			zap.Time("fire_at", t.FireAt))
	}
	return nil
}

// Run polls until the context is canceled
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.poll(ctx); err != nil {
				e.logger.Error("Poll failed", zap.Error(err))
			}
		}
	}
}

func (e *Engine) poll(ctx context.Context) error {
	return e.store.ClaimDue(ctx, time.Now(), e.claimBatch, func(t models.ScheduledTransition) error {
		handler, ok := e.handlers[t.EventType]
		if !ok {
			// Unroutable rows would otherwise clog every poll; drop them.
			e.logger.Warn("No handler for transition, dropping",
				zap.String("event_type", t.EventType),
				zap.Int64("subject_id", t.SubjectID))
			return nil
		}

		if err := handler(ctx, t); err != nil {
			e.logger.Error("Transition handler failed",
				zap.String("event_type", t.EventType),
				zap.Int64("subject_id", t.SubjectID),
				zap.Error(err))
			return err
		}

		util.TransitionsFiredTotal.WithLabelValues(t.EventType).Inc()
		return nil
	})
}
