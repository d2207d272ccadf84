package marketplace

import "errors"

// Sentinel errors returned by the engine and the Store. Callers match them
// with errors.Is; the HTTP layer maps each to a status code.
var (
	// ErrUnauthorized is returned when the caller is not the deployer or
	// admin where one is required.
	ErrUnauthorized = errors.New("caller is not authorized")

	// ErrNotInitialized is returned by mutating operations before the
	// marketplace configuration has been set.
	ErrNotInitialized = errors.New("marketplace is not initialized")

	// ErrAlreadyInitialized is returned by Initialize after the
	// configuration has been set.
	ErrAlreadyInitialized = errors.New("marketplace is already initialized")

	// ErrNotFound is returned when a project, account or audit entry does
	// not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInsufficientBalance is returned when a debit or retirement exceeds
	// the owned balance.
	ErrInsufficientBalance = errors.New("insufficient credit balance")

	// ErrInsufficientPayment is returned when the payment amount is below
	// quantity times the project's unit price.
	ErrInsufficientPayment = errors.New("payment amount below required total")

	// ErrExhausted is returned when a purchase exceeds a project's
	// remaining supply.
	ErrExhausted = errors.New("project credits exhausted")

	// ErrOverflow is returned when a balance or counter update would exceed
	// the uint64 range. The operation commits nothing.
	ErrOverflow = errors.New("counter overflow")
)
