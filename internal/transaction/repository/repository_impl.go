package repository

import (
	"context"
	"time"

	"github.com/anoteng/regnskap/internal/transaction/domain"
	"github.com/anoteng/regnskap/pkg/db/option"
	"github.com/anoteng/regnskap/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const transactionColumns = `id, ledger_id, transaction_date, description, reference, status, source,
	source_reference, reversed_of_transaction_id, version, created_by, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, t *domain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.LedgerID,
		t.TransactionDate,
		t.Description,
		t.Reference,
		t.Status,
		t.Source,
		t.SourceReference,
		t.ReversedOfTransactionID,
		t.Version,
		t.CreatedBy,
		t.CreatedAt,
		t.UpdatedAt,
	).Error
}

func (r *repo) InsertEntries(ctx context.Context, db *gorm.DB, entries []domain.JournalEntry) error {
	for _, entry := range entries {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO journal_entries (id, transaction_id, account_id, debit, credit, description, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			entry.ID,
			entry.TransactionID,
			entry.AccountID,
			entry.Debit,
			entry.Credit,
			entry.Description,
			entry.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) DeleteEntries(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM journal_entries WHERE transaction_id = ?`,
		transactionID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID) (*domain.Transaction, error) {
	var t domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+` FROM transactions WHERE ledger_id = ? AND id = ?`,
		ledgerID,
		id,
	).Scan(&t).Error
	if err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	return &t, nil
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, transactionIDs []snowflake.ID) (map[snowflake.ID][]domain.JournalEntry, error) {
	out := make(map[snowflake.ID][]domain.JournalEntry, len(transactionIDs))
	if len(transactionIDs) == 0 {
		return out, nil
	}

	var entries []domain.JournalEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, transaction_id, account_id, debit, credit, description, created_at
		 FROM journal_entries
		 WHERE transaction_id IN ?
		 ORDER BY transaction_id ASC, id ASC`,
		transactionIDs,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		out[entry.TransactionID] = append(out[entry.TransactionID], entry)
	}
	return out, nil
}

func (r *repo) filtered(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, filter domain.ListFilter) *gorm.DB {
	stmt := db.WithContext(ctx).Model(&domain.Transaction{}).Where("ledger_id = ?", ledgerID)
	if filter.From != nil {
		stmt = stmt.Where("transaction_date >= ?", *filter.From)
	}
	if filter.To != nil {
		stmt = stmt.Where("transaction_date <= ?", *filter.To)
	}
	if filter.Status != nil {
		stmt = stmt.Where("status = ?", *filter.Status)
	}
	if filter.Source != nil {
		stmt = stmt.Where("source = ?", *filter.Source)
	}
	if filter.AccountID != nil {
		stmt = stmt.Where("id IN (SELECT transaction_id FROM journal_entries WHERE account_id = ?)", *filter.AccountID)
	}
	return stmt
}

func (r *repo) List(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Transaction, error) {
	var items []*domain.Transaction
	stmt := r.filtered(ctx, db, ledgerID, filter)
	stmt = option.ApplyDatePagination(page, "transaction_date").Apply(stmt)
	if err := stmt.Order("transaction_date desc, id desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, filter domain.ListFilter) (int64, error) {
	var count int64
	err := r.filtered(ctx, db, ledgerID, filter).Count(&count).Error
	return count, err
}

func (r *repo) ListIDsByStatus(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, status domain.Status) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM transactions
		 WHERE ledger_id = ? AND status = ?
		 ORDER BY transaction_date ASC, id ASC`,
		ledgerID,
		status,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) CountLedgerAccounts(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, accountIDs []snowflake.ID) (domain.AccountCounts, error) {
	var counts domain.AccountCounts
	if len(accountIDs) == 0 {
		return counts, nil
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS total,
		        COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active
		 FROM accounts WHERE ledger_id = ? AND id IN ?`,
		ledgerID,
		accountIDs,
	).Scan(&counts).Error
	return counts, err
}

func (r *repo) FindReversal(ctx context.Context, db *gorm.DB, ledgerID, originalID snowflake.ID) (*domain.Transaction, error) {
	var t domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE ledger_id = ? AND reversed_of_transaction_id = ?`,
		ledgerID,
		originalID,
	).Scan(&t).Error
	if err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	return &t, nil
}

func (r *repo) UpdateHeader(ctx context.Context, db *gorm.DB, t *domain.Transaction, expectedVersion int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET transaction_date = ?, description = ?, reference = ?, version = version + 1, updated_at = ?
		 WHERE ledger_id = ? AND id = ? AND version = ? AND status = ?`,
		t.TransactionDate,
		t.Description,
		t.Reference,
		t.UpdatedAt,
		t.LedgerID,
		t.ID,
		expectedVersion,
		domain.StatusDraft,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID, from, to domain.Status, expectedVersion int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET status = ?, version = version + 1, updated_at = ?
		 WHERE ledger_id = ? AND id = ? AND status = ? AND version = ?`,
		to,
		now,
		ledgerID,
		id,
		from,
		expectedVersion,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) BumpVersion(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID, expectedVersion int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions SET version = version + 1, updated_at = ?
		 WHERE ledger_id = ? AND id = ? AND version = ?`,
		now,
		ledgerID,
		id,
		expectedVersion,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID, expectedVersion int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM transactions WHERE ledger_id = ? AND id = ? AND version = ?`,
		ledgerID,
		id,
		expectedVersion,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MoveEntries(ctx context.Context, db *gorm.DB, fromID, toID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE journal_entries SET transaction_id = ? WHERE transaction_id = ?`,
		toID,
		fromID,
	).Error
}

func (r *repo) ReleaseStaged(ctx context.Context, db *gorm.DB, transactionID snowflake.ID, importStatus string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bank_transactions SET import_status = ?, imported_transaction_id = NULL
		 WHERE imported_transaction_id = ?`,
		importStatus,
		transactionID,
	).Error
}

func (r *repo) RepointStaged(ctx context.Context, db *gorm.DB, fromID, toID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bank_transactions SET imported_transaction_id = ? WHERE imported_transaction_id = ?`,
		toID,
		fromID,
	).Error
}

func (r *repo) FindEntryMatches(ctx context.Context, db *gorm.DB, ledgerID, accountID snowflake.ID, from, to time.Time, amount decimal.Decimal) ([]domain.EntryMatch, error) {
	var matches []domain.EntryMatch
	abs := amount.Abs()
	err := db.WithContext(ctx).Raw(
		`SELECT t.id AS transaction_id, t.transaction_date, t.description, t.reference, t.status,
			je.debit, je.credit
		 FROM journal_entries je
		 JOIN transactions t ON t.id = je.transaction_id
		 WHERE t.ledger_id = ? AND je.account_id = ?
		   AND t.transaction_date >= ? AND t.transaction_date <= ?
		   AND (je.debit = ? OR je.credit = ?)
		 ORDER BY t.transaction_date ASC, t.id ASC`,
		ledgerID,
		accountID,
		from,
		to,
		abs,
		abs,
	).Scan(&matches).Error
	return matches, err
}

func (r *repo) ListSingleEntryDrafts(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID) ([]domain.SingleEntryDraft, error) {
	var drafts []domain.SingleEntryDraft
	err := db.WithContext(ctx).Raw(
		`SELECT t.id AS transaction_id, t.transaction_date, t.description, t.reference, t.version,
			je.id AS entry_id, je.account_id, je.debit, je.credit
		 FROM transactions t
		 JOIN journal_entries je ON je.transaction_id = t.id
		 WHERE t.ledger_id = ? AND t.status = ?
		   AND (SELECT COUNT(*) FROM journal_entries x WHERE x.transaction_id = t.id) = 1
		 ORDER BY t.transaction_date DESC, t.id DESC`,
		ledgerID,
		domain.StatusDraft,
	).Scan(&drafts).Error
	return drafts, err
}
