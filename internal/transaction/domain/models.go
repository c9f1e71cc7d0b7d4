package domain

import (
	"strings"
	"time"

	"github.com/anoteng/regnskap/internal/journal"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusPosted     Status = "POSTED"
	StatusReconciled Status = "RECONCILED"
)

func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(value))) {
	case StatusDraft:
		return StatusDraft, nil
	case StatusPosted:
		return StatusPosted, nil
	case StatusReconciled:
		return StatusReconciled, nil
	}
	return "", ErrInvalidStatus
}

// Booked reports whether the transaction counts toward balances.
func (s Status) Booked() bool {
	return s == StatusPosted || s == StatusReconciled
}

type Source string

const (
	SourceManual    Source = "MANUAL"
	SourceCSVImport Source = "CSV_IMPORT"
	SourceBankSync  Source = "BANK_SYNC"
)

func ParseSource(value string) (Source, error) {
	switch Source(strings.ToUpper(strings.TrimSpace(value))) {
	case SourceManual:
		return SourceManual, nil
	case SourceCSVImport:
		return SourceCSVImport, nil
	case SourceBankSync:
		return SourceBankSync, nil
	}
	return "", ErrInvalidSource
}

type Transaction struct {
	ID                      snowflake.ID    `gorm:"primaryKey" json:"id"`
	LedgerID                snowflake.ID    `gorm:"not null;index:ix_transactions_ledger_date,priority:1" json:"ledger_id"`
	TransactionDate         time.Time       `gorm:"type:date;not null;index:ix_transactions_ledger_date,priority:2" json:"transaction_date"`
	Description             string          `gorm:"size:500;not null" json:"description"`
	Reference               *string         `gorm:"size:100" json:"reference,omitempty"`
	Status                  Status          `gorm:"size:20;not null" json:"status"`
	Source                  Source          `gorm:"size:20;not null" json:"source"`
	SourceReference         *string         `gorm:"size:255" json:"source_reference,omitempty"`
	ReversedOfTransactionID *snowflake.ID   `json:"reversed_of_transaction_id,omitempty"`
	Version                 int64           `gorm:"not null" json:"version"`
	CreatedBy               snowflake.ID    `gorm:"not null" json:"created_by"`
	CreatedAt               time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt               time.Time       `gorm:"not null" json:"updated_at"`
	Entries                 []JournalEntry  `gorm:"-" json:"entries"`
	Validation              *journal.Result `gorm:"-" json:"validation,omitempty"`
}

func (Transaction) TableName() string { return "transactions" }

// Lines projects the entries onto the validator's input.
func (t Transaction) Lines() []journal.Line {
	lines := make([]journal.Line, 0, len(t.Entries))
	for _, entry := range t.Entries {
		lines = append(lines, entry.Line())
	}
	return lines
}

// AccountIDs returns the distinct accounts the entries touch.
func (t Transaction) AccountIDs() []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(t.Entries))
	ids := make([]snowflake.ID, 0, len(t.Entries))
	for _, entry := range t.Entries {
		if _, ok := seen[entry.AccountID]; ok {
			continue
		}
		seen[entry.AccountID] = struct{}{}
		ids = append(ids, entry.AccountID)
	}
	return ids
}

// AccountCounts tells how many of a set of account ids exist in a ledger and
// how many of those are active.
type AccountCounts struct {
	Total  int64
	Active int64
}

type JournalEntry struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	TransactionID snowflake.ID    `gorm:"not null;index" json:"transaction_id"`
	AccountID     snowflake.ID    `gorm:"not null;index" json:"account_id"`
	Debit         decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"debit"`
	Credit        decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"credit"`
	Description   *string         `gorm:"size:500" json:"description,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

func (JournalEntry) TableName() string { return "journal_entries" }

func (e JournalEntry) Line() journal.Line {
	return journal.Line{AccountID: e.AccountID, Debit: e.Debit, Credit: e.Credit}
}
