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

// ResultWorker consumes payment results and applies them to the purchase.
// It runs with auto-ack: a handler error leaves the result pending for
// recovery.
type ResultWorker struct {
	results *service.ResultService
	logger  *zap.Logger
}

func NewResultWorker(results *service.ResultService) *ResultWorker {
	return &ResultWorker{
		results: results,
		logger:  util.NamedLogger("result-worker"),
	}
}

func (w *ResultWorker) Handle(ctx context.Context, msg stream.Message) error {
	var result models.PaymentResultMessage
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return fmt.Errorf("failed to decode payment result %s: %w", msg.ID, err)
	}

	if err := w.results.HandlePaymentResult(ctx, result); err != nil {
		return err
	}

	w.logger.Info("Payment result applied",
		zap.String("payment_id", result.PaymentID),
		zap.String("status", string(result.Status)))
	return nil
}
