package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"festival-ticketing/internal/models"
	"festival-ticketing/internal/util"

	"go.uber.org/zap"
)

// Processor is the payment gateway boundary. It returns the gateway's
// verdict as a status; a non-nil error means the attempt itself broke
// (network fault, malformed response) and no verdict exists.
type Processor interface {
	Process(ctx context.Context, req models.PaymentRequestMessage) (models.PaymentStatus, error)
}

// ProcessingError marks an attempt that produced no verdict at all. It is
// distinct from a FAILED_* status, which is a definite gateway answer.
type ProcessingError struct {
	PaymentID string
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("payment %s processing failed: %v", e.PaymentID, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// PaymentService drives a single payment to a terminal status, retrying
// server-side failures with exponential backoff. Client failures and
// successes are terminal on the first answer.
type PaymentService struct {
	processor Processor
	maxRetry  int
	baseDelay time.Duration
	logger    *zap.Logger
}

func NewPaymentService(processor Processor, maxRetry int, baseDelay time.Duration) *PaymentService {
	return &PaymentService{
		processor: processor,
		maxRetry:  maxRetry,
		baseDelay: baseDelay,
		logger:    util.NamedLogger("payment"),
	}
}

// Execute runs up to maxRetry attempts. Backoff before attempt n+1 is
// baseDelay * 2^(n-1). After exhausting retries the last FAILED_SERVER
// verdict stands.
func (s *PaymentService) Execute(ctx context.Context, req models.PaymentRequestMessage) (models.PaymentStatus, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Execute")
	defer span.End()

	timer := time.Now()
	status := models.PaymentStatusFailedServer

	for attempt := 1; attempt <= s.maxRetry; attempt++ {
		util.PaymentAttemptsTotal.Inc()

		var err error
		status, err = s.processor.Process(ctx, req)
		if err != nil {
			return "", &ProcessingError{PaymentID: req.PaymentID, Err: err}
		}

		if !status.IsFailedByServer() {
			break
		}

		s.logger.Warn("Payment failed on server side",
			zap.String("payment_id", req.PaymentID),
			zap.Int("attempt", attempt))

		if attempt < s.maxRetry {
			util.PaymentRetriesTotal.Inc()
			backoff := s.baseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return "", &ProcessingError{PaymentID: req.PaymentID, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}
	}

	util.PaymentProcessingLatency.Observe(time.Since(timer).Seconds())
	util.PaymentSettledTotal.WithLabelValues(string(status)).Inc()
	return status, nil
}

// SimulatedProcessor stands in for a real gateway. Outcome proportions are
// fixed so retry and compensation paths get exercised under load.
type SimulatedProcessor struct {
	Latency time.Duration
}

func (p *SimulatedProcessor) Process(ctx context.Context, req models.PaymentRequestMessage) (models.PaymentStatus, error) {
	if p.Latency > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.Latency):
		}
	}

	roll := rand.Float64()
	switch {
	case roll < 0.8:
		return models.PaymentStatusSuccess, nil
	case roll < 0.9:
		return models.PaymentStatusFailedClient, nil
	default:
		return models.PaymentStatusFailedServer, nil
	}
}
