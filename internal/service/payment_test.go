package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"festival-ticketing/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProcessor returns a fixed sequence of verdicts
type scriptedProcessor struct {
	verdicts []models.PaymentStatus
	err      error
	calls    int
}

func (p *scriptedProcessor) Process(_ context.Context, _ models.PaymentRequestMessage) (models.PaymentStatus, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	idx := p.calls - 1
	if idx >= len(p.verdicts) {
		idx = len(p.verdicts) - 1
	}
	return p.verdicts[idx], nil
}

func paymentRequest() models.PaymentRequestMessage {
	return models.PaymentRequestMessage{
		PaymentID: "pay-123",
		BuyerID:   42,
		TicketID:  1,
		StockID:   7,
	}
}

func TestExecuteSuccessOnFirstAttempt(t *testing.T) {
	processor := &scriptedProcessor{verdicts: []models.PaymentStatus{models.PaymentStatusSuccess}}
	svc := NewPaymentService(processor, 3, time.Millisecond)

	status, err := svc.Execute(context.Background(), paymentRequest())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, status)
	assert.Equal(t, 1, processor.calls)
}

func TestExecuteClientFailureIsNotRetried(t *testing.T) {
	processor := &scriptedProcessor{verdicts: []models.PaymentStatus{models.PaymentStatusFailedClient}}
	svc := NewPaymentService(processor, 3, time.Millisecond)

	status, err := svc.Execute(context.Background(), paymentRequest())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailedClient, status)
	assert.Equal(t, 1, processor.calls)
}

func TestExecuteRetriesServerFailures(t *testing.T) {
	processor := &scriptedProcessor{verdicts: []models.PaymentStatus{
		models.PaymentStatusFailedServer,
		models.PaymentStatusFailedServer,
		models.PaymentStatusSuccess,
	}}
	svc := NewPaymentService(processor, 3, time.Millisecond)

	status, err := svc.Execute(context.Background(), paymentRequest())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, status)
	assert.Equal(t, 3, processor.calls)
}

func TestExecuteExhaustsRetries(t *testing.T) {
	processor := &scriptedProcessor{verdicts: []models.PaymentStatus{models.PaymentStatusFailedServer}}
	svc := NewPaymentService(processor, 3, time.Millisecond)

	status, err := svc.Execute(context.Background(), paymentRequest())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailedServer, status)
	// Exactly maxRetry attempts, never more.
	assert.Equal(t, 3, processor.calls)
}

func TestExecuteWrapsProcessorErrors(t *testing.T) {
	processor := &scriptedProcessor{err: errors.New("gateway unreachable")}
	svc := NewPaymentService(processor, 3, time.Millisecond)

	_, err := svc.Execute(context.Background(), paymentRequest())
	require.Error(t, err)

	var procErr *ProcessingError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "pay-123", procErr.PaymentID)
	// An attempt error aborts immediately; there is no verdict to retry on.
	assert.Equal(t, 1, processor.calls)
}
