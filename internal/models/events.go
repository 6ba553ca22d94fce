package models

import "time"

// PaymentRequestMessage is appended to the payment-request stream when a
// buyer commits to pay.
type PaymentRequestMessage struct {
	PaymentID string `json:"payment_id"`
	BuyerID   int64  `json:"buyer_id"`
	TicketID  int64  `json:"ticket_id"`
	StockID   int64  `json:"stock_id"`
}

// PaymentResultMessage is appended to the payment-result stream after the
// payment worker settles a request.
type PaymentResultMessage struct {
	PaymentID string        `json:"payment_id"`
	Status    PaymentStatus `json:"status"`
}

// FestivalScheduleMessage announces a festival whose lifecycle transitions
// must be scheduled.
type FestivalScheduleMessage struct {
	FestivalID int64     `json:"festival_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

// TicketScheduleMessage announces a ticket whose sale-window cache refresh
// must be scheduled.
type TicketScheduleMessage struct {
	TicketID      int64     `json:"ticket_id"`
	StartSaleTime time.Time `json:"start_sale_time"`
	EndSaleTime   time.Time `json:"end_sale_time"`
	RemainStock   int       `json:"remain_stock"`
}
