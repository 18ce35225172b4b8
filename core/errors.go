package core

import "errors"

// Admission and execution sentinels. Admission errors surface before any
// state change commits; errors raised after admission keep the fee, value
// transfer, and nonce bump in place and discard only contract writes.
var (
	ErrUnknownContract     = errors.New("core: unknown contract")
	ErrSignatureRequired   = errors.New("core: transaction signature required")
	ErrNonceMismatch       = errors.New("core: transaction nonce mismatch")
	ErrInsufficientBalance = errors.New("core: insufficient balance for value plus fee")
	ErrGasLimitExceeded    = errors.New("core: transaction exceeds block gas limit")
	ErrCallDepthExceeded   = errors.New("core: contract call depth exceeded")
	ErrBlockNotFound       = errors.New("core: block not found")
	ErrTransactionNotFound = errors.New("core: transaction not found")
	ErrReceiptNotFound     = errors.New("core: receipt not found")
	ErrInvalidBlock        = errors.New("core: archived block failed integrity check")
	ErrInvalidValue        = errors.New("core: transaction value must not be negative")
	ErrEmptyBytecode       = errors.New("core: contract bytecode must not be empty")
)
