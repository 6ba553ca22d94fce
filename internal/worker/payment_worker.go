package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"festival-ticketing/internal/models"
	"festival-ticketing/internal/service"
	"festival-ticketing/internal/stream"
	"festival-ticketing/internal/util"

	"go.uber.org/zap"
)

// PaymentStatusStore records payment progress while the saga runs
type PaymentStatusStore interface {
	UpdatePaymentStatus(ctx context.Context, paymentUUID string, status models.PaymentStatus) error
}

// ResultAppender emits the settled verdict to the result stream
type ResultAppender interface {
	Append(ctx context.Context, stream string, payload interface{}) (string, error)
}

// Acker acknowledges a fully settled request message
type Acker interface {
	Ack(ctx context.Context, stream, group, messageID string) error
}

// TaskPool runs settlement tasks with bounded concurrency
type TaskPool interface {
	Submit(task func())
}

// PaymentWorker consumes payment requests and settles them on the worker
// pool. The request message is acked only after the verdict is durably in
// the result stream; anything that dies before that point stays pending and
// is re-driven by recovery.
type PaymentWorker struct {
	payments     *service.PaymentService
	store        PaymentStatusStore
	appender     ResultAppender
	acker        Acker
	pool         TaskPool
	requestStr   string
	requestGroup string
	resultStr    string
	logger       *zap.Logger
}

func NewPaymentWorker(
	payments *service.PaymentService,
	store PaymentStatusStore,
	appender ResultAppender,
	acker Acker,
	pool TaskPool,
	requestStream, requestGroup, resultStream string,
) *PaymentWorker {
	return &PaymentWorker{
		payments:     payments,
		store:        store,
		appender:     appender,
		acker:        acker,
		pool:         pool,
		requestStr:   requestStream,
		requestGroup: requestGroup,
		resultStr:    resultStream,
		logger:       util.NamedLogger("payment-worker"),
	}
}

// Handle is the consumer handler for the request stream. It validates the
// message, then hands the slow settlement work to the pool so the read loop
// keeps draining. Under saturation Submit runs the task on this goroutine,
// which throttles the read loop instead of growing an unbounded backlog.
func (w *PaymentWorker) Handle(ctx context.Context, msg stream.Message) error {
	var req models.PaymentRequestMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		// Undecodable requests stay pending; recovery abandons them once
		// the error budget runs out.
		return fmt.Errorf("failed to decode payment request %s: %w", msg.ID, err)
	}

	w.pool.Submit(func() {
		if err := w.settle(ctx, msg.ID, req); err != nil {
			w.logger.Error("Payment settlement failed",
				zap.String("payment_id", req.PaymentID), zap.Error(err))
		}
	})
	return nil
}

// HandleBlocking settles inline instead of through the pool. The recovery
// sweep uses it so that success is only reported once the verdict is in the
// result stream.
func (w *PaymentWorker) HandleBlocking(ctx context.Context, msg stream.Message) error {
	var req models.PaymentRequestMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return fmt.Errorf("failed to decode payment request %s: %w", msg.ID, err)
	}
	return w.settle(ctx, msg.ID, req)
}

func (w *PaymentWorker) settle(ctx context.Context, messageID string, req models.PaymentRequestMessage) error {
	if err := w.store.UpdatePaymentStatus(ctx, req.PaymentID, models.PaymentStatusInProgress); err != nil {
		return fmt.Errorf("failed to mark payment in progress: %w", err)
	}

	status, err := w.payments.Execute(ctx, req)
	if err != nil {
		// No verdict exists, so no result is emitted and the request stays
		// pending for recovery to re-drive.
		return err
	}

	result := models.PaymentResultMessage{PaymentID: req.PaymentID, Status: status}
	if _, err := w.appender.Append(ctx, w.resultStr, result); err != nil {
		return fmt.Errorf("failed to emit payment result: %w", err)
	}

	// Ack strictly after the result is in the log. A crash between emit and
	// ack causes a duplicate result, which settlement tolerates; the
	// reverse order could lose the verdict entirely.
	if err := w.acker.Ack(ctx, w.requestStr, w.requestGroup, messageID); err != nil {
		w.logger.Error("Failed to ack payment request",
			zap.String("message_id", messageID), zap.Error(err))
		return nil
	}

	w.logger.Info("Payment settled",
		zap.String("payment_id", req.PaymentID),
		zap.String("status", string(status)))
	return nil
}
