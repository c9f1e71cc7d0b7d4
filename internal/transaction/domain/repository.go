package domain

import (
	"context"
	"time"

	"github.com/anoteng/regnskap/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ListFilter struct {
	From      *time.Time
	To        *time.Time
	AccountID *snowflake.ID
	Status    *Status
	Source    *Source
}

// EntryMatch is a booked or draft entry found on an account, with its
// transaction header.
type EntryMatch struct {
	TransactionID   snowflake.ID
	TransactionDate time.Time
	Description     string
	Reference       *string
	Status          Status
	Debit           decimal.Decimal
	Credit          decimal.Decimal
}

// SingleEntryDraft is a draft carrying exactly one journal entry.
type SingleEntryDraft struct {
	TransactionID   snowflake.ID
	TransactionDate time.Time
	Description     string
	Reference       *string
	Version         int64
	EntryID         snowflake.ID
	AccountID       snowflake.ID
	Debit           decimal.Decimal
	Credit          decimal.Decimal
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, transaction *Transaction) error
	InsertEntries(ctx context.Context, db *gorm.DB, entries []JournalEntry) error
	DeleteEntries(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID) (*Transaction, error)
	ListEntries(ctx context.Context, db *gorm.DB, transactionIDs []snowflake.ID) (map[snowflake.ID][]JournalEntry, error)
	List(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*Transaction, error)
	Count(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, filter ListFilter) (int64, error)
	ListIDsByStatus(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, status Status) ([]snowflake.ID, error)
	CountLedgerAccounts(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, accountIDs []snowflake.ID) (AccountCounts, error)
	FindReversal(ctx context.Context, db *gorm.DB, ledgerID, originalID snowflake.ID) (*Transaction, error)

	// The versioned writes below report false when the row was not at
	// expectedVersion.
	UpdateHeader(ctx context.Context, db *gorm.DB, transaction *Transaction, expectedVersion int64) (bool, error)
	TransitionStatus(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID, from, to Status, expectedVersion int64, now time.Time) (bool, error)
	BumpVersion(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID, expectedVersion int64, now time.Time) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID, expectedVersion int64) (bool, error)

	MoveEntries(ctx context.Context, db *gorm.DB, fromID, toID snowflake.ID) error
	ReleaseStaged(ctx context.Context, db *gorm.DB, transactionID snowflake.ID, importStatus string) error
	RepointStaged(ctx context.Context, db *gorm.DB, fromID, toID snowflake.ID) error
	FindEntryMatches(ctx context.Context, db *gorm.DB, ledgerID, accountID snowflake.ID, from, to time.Time, amount decimal.Decimal) ([]EntryMatch, error)
	ListSingleEntryDrafts(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID) ([]SingleEntryDraft, error)
}
