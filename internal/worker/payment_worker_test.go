package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"festival-ticketing/internal/models"
	"festival-ticketing/internal/service"
	"festival-ticketing/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inlinePool runs tasks synchronously so assertions see settled state
type inlinePool struct{}

func (inlinePool) Submit(task func()) { task() }

type stubProcessor struct {
	status models.PaymentStatus
	err    error
	calls  int
}

func (p *stubProcessor) Process(_ context.Context, _ models.PaymentRequestMessage) (models.PaymentStatus, error) {
	p.calls++
	return p.status, p.err
}

type recordingStore struct {
	mu       sync.Mutex
	statuses map[string]models.PaymentStatus
}

func (s *recordingStore) UpdatePaymentStatus(_ context.Context, paymentUUID string, status models.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses == nil {
		s.statuses = make(map[string]models.PaymentStatus)
	}
	s.statuses[paymentUUID] = status
	return nil
}

type recordingAppender struct {
	mu      sync.Mutex
	results []models.PaymentResultMessage
	err     error
}

func (a *recordingAppender) Append(_ context.Context, _ string, payload interface{}) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.results = append(a.results, payload.(models.PaymentResultMessage))
	return "1-0", nil
}

type recordingAcker struct {
	mu    sync.Mutex
	acked []string
}

func (a *recordingAcker) Ack(_ context.Context, _, _, messageID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, messageID)
	return nil
}

func requestMessage(t *testing.T) stream.Message {
	t.Helper()
	return stream.Message{
		ID:      "1-0",
		Payload: []byte(`{"payment_id":"pay-1","buyer_id":42,"ticket_id":1,"stock_id":7}`),
	}
}

func newWorker(processor service.Processor, store *recordingStore, appender *recordingAppender, acker *recordingAcker) *PaymentWorker {
	payments := service.NewPaymentService(processor, 3, time.Millisecond)
	return NewPaymentWorker(payments, store, appender, acker, inlinePool{},
		"payment-request-stream", "payment-request-stream-group", "payment-result-stream")
}

func TestPaymentWorkerEmitsResultThenAcks(t *testing.T) {
	store := &recordingStore{}
	appender := &recordingAppender{}
	acker := &recordingAcker{}
	worker := newWorker(&stubProcessor{status: models.PaymentStatusSuccess}, store, appender, acker)

	require.NoError(t, worker.Handle(context.Background(), requestMessage(t)))

	assert.Equal(t, models.PaymentStatusInProgress, store.statuses["pay-1"])
	require.Len(t, appender.results, 1)
	assert.Equal(t, models.PaymentStatusSuccess, appender.results[0].Status)
	assert.Equal(t, []string{"1-0"}, acker.acked)
}

func TestPaymentWorkerLeavesMessagePendingOnProcessingError(t *testing.T) {
	store := &recordingStore{}
	appender := &recordingAppender{}
	acker := &recordingAcker{}
	worker := newWorker(&stubProcessor{err: errors.New("gateway down")}, store, appender, acker)

	require.NoError(t, worker.Handle(context.Background(), requestMessage(t)))

	// No verdict, no result, no ack: recovery owns this message now.
	assert.Empty(t, appender.results)
	assert.Empty(t, acker.acked)
}

func TestPaymentWorkerDoesNotAckWhenEmitFails(t *testing.T) {
	store := &recordingStore{}
	appender := &recordingAppender{err: errors.New("stream down")}
	acker := &recordingAcker{}
	worker := newWorker(&stubProcessor{status: models.PaymentStatusSuccess}, store, appender, acker)

	require.NoError(t, worker.Handle(context.Background(), requestMessage(t)))
	assert.Empty(t, acker.acked)
}

func TestPaymentWorkerRejectsUndecodableMessage(t *testing.T) {
	worker := newWorker(&stubProcessor{status: models.PaymentStatusSuccess}, &recordingStore{}, &recordingAppender{}, &recordingAcker{})

	err := worker.Handle(context.Background(), stream.Message{ID: "1-0", Payload: []byte("not json")})
	assert.Error(t, err)
}
