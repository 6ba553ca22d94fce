package models

import "errors"

// Domain validation and conflict errors. These are surfaced to callers as-is
// and are never retried.
var (
	ErrFestivalNotFound       = errors.New("festival not found")
	ErrTicketNotFound         = errors.New("ticket not found")
	ErrInvalidPurchaseTime    = errors.New("outside ticket sale window")
	ErrAlreadyPurchased       = errors.New("ticket already purchased")
	ErrAlreadyReserved        = errors.New("stock already reserved by buyer")
	ErrStockMismatch          = errors.New("stock unit does not match ticket")
	ErrPurchaseSessionExpired = errors.New("purchase session expired or missing")
	ErrPurchaseNotFound       = errors.New("purchase not found")
	ErrPaymentNotFound        = errors.New("payment not found")

	// ErrInvalidStatusTransition rejects backward or in-place festival
	// transitions.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrPaymentCorrupted marks a payment result whose payment id has no
	// matching purchase. This is data corruption, distinct from ordinary
	// not-found, and must never be retried.
	ErrPaymentCorrupted = errors.New("payment result references unknown purchase")
)
