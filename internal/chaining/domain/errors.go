package domain

import "errors"

var (
	ErrInvalidLedger   = errors.New("invalid_ledger")
	ErrInvalidID       = errors.New("invalid_id")
	ErrSameTransaction = errors.New("chain_same_transaction")
	ErrNotSingleEntry  = errors.New("chain_requires_single_entry")
	ErrSameAccount     = errors.New("chain_same_account")
	ErrSameSide        = errors.New("chain_same_side")
)
