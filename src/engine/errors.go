package engine

import "errors"

// Every rejection maps to one of these values so callers can branch on
// remediation: retry (ErrRecordBusy), fix input, or abandon. Nothing in
// the engine recovers an error silently; a failed operation leaves zero
// partial effect.
var (
	// Input validation, rejected before any state mutation.
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidPrice  = errors.New("invalid price")
	ErrInvalidFee    = errors.New("fee out of range")

	// Business rules, rejected after read, before write.
	ErrPriceMismatch           = errors.New("buy price below sell price")
	ErrSelfTradeNotAllowed     = errors.New("self trade not allowed")
	ErrInactiveOrder           = errors.New("order is not active")
	ErrOrderExpired            = errors.New("order expired")
	ErrInvalidOrderState       = errors.New("order is in a terminal state")
	ErrBatchProcessingDisabled = errors.New("batch processing disabled")
	ErrBatchSizeExceeded       = errors.New("batch size exceeded")

	// Authorization, checked first.
	ErrUnauthorizedAuthority = errors.New("unauthorized authority")

	// Numeric outcome, checked before any transfer.
	ErrMathOverflow = errors.New("math overflow")

	// Concurrency: the record is held by another in-flight operation.
	// Surfaced to the caller for retry, never queued.
	ErrRecordBusy = errors.New("record busy")

	ErrOrderNotFound = errors.New("order not found")
)
