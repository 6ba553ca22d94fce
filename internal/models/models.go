package models

import (
	"database/sql"
	"time"
)

// Festival represents a festival whose lifecycle is driven by the scheduler
type Festival struct {
	ID        int64          `db:"id" json:"id"`
	Title     string         `db:"title" json:"title"`
	StartTime time.Time      `db:"start_time" json:"start_time"`
	EndTime   time.Time      `db:"end_time" json:"end_time"`
	Status    FestivalStatus `db:"status" json:"status"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Ticket represents a sellable ticket type within a festival
type Ticket struct {
	ID            int64     `db:"id" json:"id"`
	FestivalID    int64     `db:"festival_id" json:"festival_id"`
	Name          string    `db:"name" json:"name"`
	Detail        string    `db:"detail" json:"detail"`
	Price         int64     `db:"price" json:"price"`
	Quantity      int       `db:"quantity" json:"quantity"`
	StartSaleTime time.Time `db:"start_sale_time" json:"start_sale_time"`
	EndSaleTime   time.Time `db:"end_sale_time" json:"end_sale_time"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// IsOnSale reports whether the sale window [start, end) contains now.
func (t *Ticket) IsOnSale(now time.Time) bool {
	return !now.Before(t.StartSaleTime) && now.Before(t.EndSaleTime)
}

// StockUnit is one sellable inventory unit of a ticket. A unit is free while
// BuyerID is NULL and reserved once a buyer claims it under the row lock.
// At most one unit per (ticket, buyer) may be reserved; the partial unique
// index on (ticket_id, buyer_id) enforces it.
type StockUnit struct {
	ID         int64         `db:"id" json:"id"`
	TicketID   int64         `db:"ticket_id" json:"ticket_id"`
	BuyerID    sql.NullInt64 `db:"buyer_id" json:"buyer_id"`
	ReservedAt sql.NullTime  `db:"reserved_at" json:"reserved_at"`
}

// PurchaseSession is the ephemeral proof that a buyer won a reservation.
// It lives in the cache keyed by (ticket, buyer) and dies by TTL.
type PurchaseSession struct {
	SessionID string `json:"session_id"`
	TicketID  int64  `json:"ticket_id"`
	BuyerID   int64  `json:"buyer_id"`
	StockID   int64  `json:"stock_id"`
}

// Purchase is the durable record of a purchase attempt
type Purchase struct {
	ID           int64          `db:"id" json:"id"`
	PaymentUUID  string         `db:"payment_uuid" json:"payment_uuid"`
	TicketID     int64          `db:"ticket_id" json:"ticket_id"`
	BuyerID      int64          `db:"buyer_id" json:"buyer_id"`
	Status       PurchaseStatus `db:"status" json:"status"`
	PurchaseTime time.Time      `db:"purchase_time" json:"purchase_time"`
}

// Payment is 1:1 with a Purchase, tracked by the shared payment UUID
type Payment struct {
	ID          int64         `db:"id" json:"id"`
	PaymentUUID string        `db:"payment_uuid" json:"payment_uuid"`
	PurchaseID  int64         `db:"purchase_id" json:"purchase_id"`
	Status      PaymentStatus `db:"status" json:"status"`
	PaymentTime time.Time     `db:"payment_time" json:"payment_time"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// Checkin is created in pending state when a payment settles successfully
type Checkin struct {
	ID        int64     `db:"id" json:"id"`
	BuyerID   int64     `db:"buyer_id" json:"buyer_id"`
	TicketID  int64     `db:"ticket_id" json:"ticket_id"`
	CheckedIn bool      `db:"checked_in" json:"checked_in"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ScheduledTransition is a durable, time-keyed action. The scheduler polls
// for due rows and fires the handler registered for EventType. The natural
// key (subject_type, subject_id, event_type) makes registration idempotent.
type ScheduledTransition struct {
	ID          int64     `db:"id" json:"id"`
	SubjectType string    `db:"subject_type" json:"subject_type"`
	SubjectID   int64     `db:"subject_id" json:"subject_id"`
	EventType   string    `db:"event_type" json:"event_type"`
	FireAt      time.Time `db:"fire_at" json:"fire_at"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// FestivalStatus is the time-driven lifecycle state of a festival
type FestivalStatus string

const (
	FestivalStatusUpcoming  FestivalStatus = "UPCOMING"
	FestivalStatusOngoing   FestivalStatus = "ONGOING"
	FestivalStatusCompleted FestivalStatus = "COMPLETED"
)

var festivalStatusRank = map[FestivalStatus]int{
	FestivalStatusUpcoming:  0,
	FestivalStatusOngoing:   1,
	FestivalStatusCompleted: 2,
}

// CanTransitionTo reports whether target is a strictly forward transition.
// COMPLETED is terminal and transitions never move backwards or in place.
func (s FestivalStatus) CanTransitionTo(target FestivalStatus) bool {
	from, ok := festivalStatusRank[s]
	if !ok {
		return false
	}
	to, ok := festivalStatusRank[target]
	if !ok {
		return false
	}
	return to > from
}

// PurchaseStatus lifecycle: INITIATED -> PAID -> {CANCELED, REFUNDED}
type PurchaseStatus string

const (
	PurchaseStatusInitiated PurchaseStatus = "INITIATED"
	PurchaseStatusPaid      PurchaseStatus = "PAID"
	PurchaseStatusCanceled  PurchaseStatus = "CANCELED"
	PurchaseStatusRefunded  PurchaseStatus = "REFUNDED"
)

func (s PurchaseStatus) IsPurchased() bool {
	return s == PurchaseStatusPaid
}

// PaymentStatus lifecycle: INITIATED -> IN_PROGRESS -> terminal
type PaymentStatus string

const (
	PaymentStatusInitiated    PaymentStatus = "INITIATED"
	PaymentStatusInProgress   PaymentStatus = "IN_PROGRESS"
	PaymentStatusSuccess      PaymentStatus = "SUCCESS"
	PaymentStatusFailedClient PaymentStatus = "FAILED_CLIENT"
	PaymentStatusFailedServer PaymentStatus = "FAILED_SERVER"
)

func (s PaymentStatus) IsSuccess() bool {
	return s == PaymentStatusSuccess
}

func (s PaymentStatus) IsFailed() bool {
	return s == PaymentStatusFailedClient || s == PaymentStatusFailedServer
}

// IsFailedByServer reports a retryable processor/network fault.
// Client-caused failures are terminal and never retried.
func (s PaymentStatus) IsFailedByServer() bool {
	return s == PaymentStatusFailedServer
}
