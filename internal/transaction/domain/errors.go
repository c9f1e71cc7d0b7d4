package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidLedger          = errors.New("invalid_ledger")
	ErrInvalidID              = errors.New("invalid_id")
	ErrInvalidUser            = errors.New("invalid_user")
	ErrInvalidDate            = errors.New("invalid_transaction_date")
	ErrInvalidDescription     = errors.New("invalid_description")
	ErrInvalidReference       = errors.New("invalid_reference")
	ErrInvalidStatus          = errors.New("invalid_status")
	ErrInvalidSource          = errors.New("invalid_source")
	ErrInvalidEntry           = errors.New("invalid_journal_entry")
	ErrInvalidAccount         = errors.New("invalid_entry_account")
	ErrInactiveAccount        = errors.New("inactive_entry_account")
	ErrInvalidPageToken       = errors.New("invalid_page_token")
	ErrInvalidState           = errors.New("invalid_transaction_state")
	ErrNotFound               = errors.New("not_found")
	ErrConcurrentModification = errors.New("concurrent_modification")
	ErrAlreadyReversed        = errors.New("already_reversed")
)

// StateError is returned when an operation is not allowed from the
// transaction's current status.
type StateError struct {
	From Status
	Op   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s a %s transaction", e.Op, e.From)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }
