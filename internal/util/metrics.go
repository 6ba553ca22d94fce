package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_attempts_total",
		Help: "Total number of stock reservation attempts",
	})

	ReservationsSucceededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_succeeded_total",
		Help: "Total number of successful stock reservations",
	})

	ReservationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_failed_total",
		Help: "Total number of failed stock reservations",
	}, []string{"reason"})

	ReservationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reservation_latency_seconds",
		Help:    "Latency of stock reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of payment processor calls",
	})

	PaymentRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_retries_total",
		Help: "Total number of payment retries after server failures",
	})

	PaymentSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_settled_total",
		Help: "Total number of settled payments by final status",
	}, []string{"status"})

	PaymentProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_processing_latency_seconds",
		Help:    "Latency of payment processing including retries",
		Buckets: prometheus.DefBuckets,
	})

	CompensationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "compensations_total",
		Help: "Total number of stock compensations after failed payments",
	})

	StreamAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_appends_total",
		Help: "Total number of messages appended per stream",
	}, []string{"stream"})

	PendingFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pending_failures_total",
		Help: "Total number of pending messages given up on by the recovery scheduler",
	}, []string{"reason"})

	PendingReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pending_reclaimed_total",
		Help: "Total number of pending messages claimed by the recovery scheduler",
	})

	TransitionsFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transitions_fired_total",
		Help: "Total number of scheduled transitions fired",
	}, []string{"event_type"})

	TransitionsRecoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transitions_recovered_total",
		Help: "Total number of transitions re-derived on scheduler start",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
