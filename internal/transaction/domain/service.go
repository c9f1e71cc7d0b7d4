package domain

import (
	"context"
	"time"

	"github.com/anoteng/regnskap/internal/journal"
	"github.com/anoteng/regnskap/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type EntryInput struct {
	AccountID   snowflake.ID
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description *string
}

type CreateTransactionRequest struct {
	TransactionDate time.Time
	Description     string
	Reference       *string
	Source          string
	SourceReference *string
	Entries         []EntryInput
}

// UpdateTransactionRequest replaces the header fields and every entry of a
// draft. ExpectedVersion must match the stored version.
type UpdateTransactionRequest struct {
	ExpectedVersion int64
	TransactionDate time.Time
	Description     string
	Reference       *string
	Entries         []EntryInput
}

type ListTransactionsRequest struct {
	pagination.Pagination
	From      *time.Time
	To        *time.Time
	AccountID *snowflake.ID
	Status    string
	Source    string
}

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []Transaction `json:"transactions"`
}

type PostFailure struct {
	TransactionID snowflake.ID `json:"transaction_id"`
	Code          string       `json:"code"`
	Message       string       `json:"message"`
}

type PostAllResult struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Errors    []PostFailure `json:"errors"`
}

type Service interface {
	Create(ctx context.Context, ledgerID, userID snowflake.ID, req CreateTransactionRequest) (Transaction, error)
	Get(ctx context.Context, ledgerID, id snowflake.ID) (Transaction, error)
	List(ctx context.Context, ledgerID snowflake.ID, req ListTransactionsRequest) (ListTransactionsResponse, error)
	Queue(ctx context.Context, ledgerID snowflake.ID, page pagination.Pagination) (ListTransactionsResponse, error)
	Update(ctx context.Context, ledgerID, id snowflake.ID, req UpdateTransactionRequest) (Transaction, error)
	Post(ctx context.Context, ledgerID, id snowflake.ID) (Transaction, error)
	Reconcile(ctx context.Context, ledgerID, id snowflake.ID) (Transaction, error)
	Delete(ctx context.Context, ledgerID, id snowflake.ID, discard bool) error
	PostAllDrafts(ctx context.Context, ledgerID snowflake.ID) (PostAllResult, error)
	Reverse(ctx context.Context, ledgerID, userID, id snowflake.ID) (Transaction, error)
	Validate(entries []EntryInput) journal.Result
}
