package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

type CreateAccountRequest struct {
	AccountNumber   string
	AccountName     string
	AccountType     string
	ParentAccountID *snowflake.ID
	Description     *string
}

// UpdateAccountRequest changes only the fields that are set. ClearParent
// detaches the account from its parent.
type UpdateAccountRequest struct {
	AccountNumber   *string
	AccountName     *string
	AccountType     *string
	ParentAccountID *snowflake.ID
	ClearParent     bool
	Description     *string
	IsActive        *bool
}

type ListAccountsRequest struct {
	Type            string
	IncludeInactive bool
}

type Service interface {
	Create(ctx context.Context, ledgerID snowflake.ID, req CreateAccountRequest) (Account, error)
	Update(ctx context.Context, ledgerID, id snowflake.ID, req UpdateAccountRequest) (Account, error)
	Deactivate(ctx context.Context, ledgerID, id snowflake.ID) (Account, error)
	Delete(ctx context.Context, ledgerID, id snowflake.ID) error
	Get(ctx context.Context, ledgerID, id snowflake.ID) (Account, error)
	List(ctx context.Context, ledgerID snowflake.ID, req ListAccountsRequest) ([]Account, error)
	ApplyTemplate(ctx context.Context, ledgerID snowflake.ID, templateName string) ([]Account, error)
	ListTemplates(ctx context.Context) ([]Template, error)
}

var (
	ErrInvalidLedger    = errors.New("invalid_ledger")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidNumber    = errors.New("invalid_account_number")
	ErrInvalidName      = errors.New("invalid_account_name")
	ErrInvalidType      = errors.New("invalid_account_type")
	ErrInvalidParent    = errors.New("invalid_parent_account")
	ErrParentCycle      = errors.New("parent_account_cycle")
	ErrDuplicateNumber  = errors.New("duplicate_account_number")
	ErrImmutableField   = errors.New("account_field_immutable")
	ErrNotFound         = errors.New("not_found")
	ErrTemplateNotFound = errors.New("template_not_found")
	ErrAccountInUse     = errors.New("account_in_use")
)

// InUseError says what still references an account.
type InUseError struct {
	JournalEntries int64
	BankAccounts   int64
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("account is referenced by %d journal entries and %d bank accounts", e.JournalEntries, e.BankAccounts)
}

func (e *InUseError) Unwrap() error { return ErrAccountInUse }
