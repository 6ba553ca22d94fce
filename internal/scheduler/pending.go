package scheduler

import (
	"context"
	"time"

	"festival-ticketing/config"
	"festival-ticketing/internal/stream"
	"festival-ticketing/internal/util"

	"go.uber.org/zap"
)

// StreamOps is the slice of the stream client pending recovery needs
type StreamOps interface {
	Pending(ctx context.Context, stream, group string, limit int64) ([]stream.PendingMessage, error)
	Claim(ctx context.Context, stream, group, consumer, messageID string, minIdle time.Duration) error
	Fetch(ctx context.Context, stream, messageID string) (stream.Message, bool, error)
	Ack(ctx context.Context, stream, group, messageID string) error
}

// ErrorCounter tracks redelivery failures per message across instances
type ErrorCounter interface {
	IncrErrorCount(ctx context.Context, messageID string) (int64, error)
	GetErrorCount(ctx context.Context, messageID string) (int64, error)
}

// PendingRecovery re-drives messages that were delivered but never acked,
// typically because a consumer crashed mid-handling. Messages that keep
// failing are abandoned in the pending list for operator inspection rather
// than acked away.
type PendingRecovery struct {
	ops      StreamOps
	counter  ErrorCounter
	stream   string
	group    string
	consumer string
	handler  stream.HandlerFunc
	cfg      config.RecoveryConfig
	logger   *zap.Logger
}

func NewPendingRecovery(ops StreamOps, counter ErrorCounter, streamName, group, consumer string, handler stream.HandlerFunc, cfg config.RecoveryConfig) *PendingRecovery {
	return &PendingRecovery{
		ops:      ops,
		counter:  counter,
		stream:   streamName,
		group:    group,
		consumer: consumer,
		handler:  handler,
		cfg:      cfg,
		logger:   util.NamedLogger("pending-recovery").With(zap.String("stream", streamName)),
	}
}

// Run sweeps the pending list on a fixed interval until the context is
// canceled
func (r *PendingRecovery) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("Pending sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one recovery pass over the pending list
func (r *PendingRecovery) Sweep(ctx context.Context) error {
	pending, err := r.ops.Pending(ctx, r.stream, r.group, r.cfg.FetchLimit)
	if err != nil {
		return err
	}

	for _, p := range pending {
		if p.Idle < r.cfg.MinIdleTime {
			continue
		}

		if err := r.ops.Claim(ctx, r.stream, r.group, r.consumer, p.ID, r.cfg.MinIdleTime); err != nil {
			r.logger.Error("Failed to claim pending message",
				zap.String("message_id", p.ID), zap.Error(err))
			continue
		}

		msg, found, err := r.ops.Fetch(ctx, r.stream, p.ID)
		if err != nil {
			r.logger.Error("Failed to fetch pending message",
				zap.String("message_id", p.ID), zap.Error(err))
			continue
		}
		if !found {
			// Trimmed out of the stream since delivery; nothing to re-drive.
			r.logger.Warn("Pending message no longer in stream",
				zap.String("message_id", p.ID))
			continue
		}

		if p.DeliveryCount > r.cfg.MaxDeliveryCount {
			// Left unacked on purpose so XPENDING still shows it.
			util.PendingFailuresTotal.WithLabelValues("delivery_exceeded").Inc()
			r.logger.Warn("Giving up on message, delivery count exceeded",
				zap.String("message_id", p.ID),
				zap.Int64("delivery_count", p.DeliveryCount))
			continue
		}

		errCount, err := r.counter.GetErrorCount(ctx, p.ID)
		if err != nil {
			r.logger.Error("Failed to read error count",
				zap.String("message_id", p.ID), zap.Error(err))
			continue
		}
		if errCount >= r.cfg.MaxErrorCount {
			util.PendingFailuresTotal.WithLabelValues("error_exceeded").Inc()
			r.logger.Warn("Giving up on message, error count exceeded",
				zap.String("message_id", p.ID),
				zap.Int64("error_count", errCount))
			continue
		}

		if err := r.handler(ctx, msg); err != nil {
			if _, incErr := r.counter.IncrErrorCount(ctx, p.ID); incErr != nil {
				r.logger.Error("Failed to record handler error",
					zap.String("message_id", p.ID), zap.Error(incErr))
			}
			util.PendingFailuresTotal.WithLabelValues("handler_error").Inc()
			r.logger.Warn("Recovered message failed again",
				zap.String("message_id", p.ID), zap.Error(err))
			continue
		}

		if err := r.ops.Ack(ctx, r.stream, r.group, p.ID); err != nil {
			r.logger.Error("Failed to ack recovered message",
				zap.String("message_id", p.ID), zap.Error(err))
			continue
		}

		util.PendingReclaimedTotal.Inc()
		r.logger.Info("Pending message recovered", zap.String("message_id", p.ID))
	}

	return nil
}
