package models

import "errors"

var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInsufficientFunds  = errors.New("insufficient available balance")
	ErrInsufficientEscrow = errors.New("insufficient escrow balance")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrAlreadyResolved    = errors.New("request already resolved")
	ErrNotFound           = errors.New("not found")
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrCauseConflict is returned when a cause reference was already used
	// for the same kind of entry with a different wallet or amount.
	ErrCauseConflict    = errors.New("cause reference reused with different parameters")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidWallet    = errors.New("wallet needs a user and a currency")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthorized     = errors.New("unauthorized")
	// ErrConflict signals a lost optimistic race inside a store; stores
	// retry it internally and callers should not normally see it.
	ErrConflict = errors.New("concurrent modification")
)
