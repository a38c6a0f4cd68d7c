package model

import "errors"

// Domain rule violations. Repositories and services wrap these so callers can
// branch with errors.Is regardless of how deep the failure happened.
var (
	ErrCurrencyMismatch   = errors.New("currency mismatch")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrChannelMismatch    = errors.New("channel mismatch")
	ErrAmountMismatch     = errors.New("amount mismatch")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrDuplicateReference = errors.New("external reference already used by another confirmed top-up")
	ErrInvalidTransition  = errors.New("invalid top-up status transition")
	ErrLockNotActive      = errors.New("top-up lock is not active")
	ErrWalletInactive     = errors.New("wallet is not active")
)
