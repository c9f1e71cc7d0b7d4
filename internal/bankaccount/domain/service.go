package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateBankAccountRequest struct {
	Name          string
	AccountType   string
	AccountID     snowflake.ID
	AccountNumber *string
}

type Service interface {
	Create(ctx context.Context, ledgerID snowflake.ID, req CreateBankAccountRequest) (Linked, error)
	Get(ctx context.Context, ledgerID, id snowflake.ID) (Linked, error)
	List(ctx context.Context, ledgerID snowflake.ID, includeInactive bool) ([]Linked, error)
	Deactivate(ctx context.Context, ledgerID, id snowflake.ID) error
}

var (
	ErrInvalidLedger    = errors.New("invalid_ledger")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidName      = errors.New("invalid_bank_account_name")
	ErrInvalidType      = errors.New("invalid_bank_account_type")
	ErrInvalidGLAccount = errors.New("invalid_gl_account")
	ErrInactive         = errors.New("bank_account_inactive")
	ErrNotFound         = errors.New("not_found")
)
