package repository

import (
	"context"

	accountdomain "github.com/anoteng/regnskap/internal/account/domain"
	"github.com/anoteng/regnskap/internal/bankaccount/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const linkedSelect = `SELECT ba.id, ba.ledger_id, ba.account_id, ba.name, ba.account_type, ba.account_number,
	ba.balance, ba.is_active, ba.created_at, ba.updated_at, a.account_type AS gl_account_type
	FROM bank_accounts ba
	JOIN accounts a ON a.id = ba.account_id`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.BankAccount) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bank_accounts (id, ledger_id, account_id, name, account_type, account_number,
			balance, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.LedgerID,
		account.AccountID,
		account.Name,
		account.AccountType,
		account.AccountNumber,
		account.Balance,
		account.IsActive,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID, active bool) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bank_accounts SET is_active = ? WHERE ledger_id = ? AND id = ?`,
		active,
		ledgerID,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID) (*domain.Linked, error) {
	var account domain.Linked
	err := db.WithContext(ctx).Raw(
		linkedSelect+` WHERE ba.ledger_id = ? AND ba.id = ?`,
		ledgerID,
		id,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, includeInactive bool) ([]*domain.Linked, error) {
	query := linkedSelect + ` WHERE ba.ledger_id = ?`
	args := []any{ledgerID}
	if !includeInactive {
		query += ` AND ba.is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY ba.name ASC, ba.id ASC`

	var accounts []*domain.Linked
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) GLAccountType(ctx context.Context, db *gorm.DB, ledgerID, accountID snowflake.ID) (string, error) {
	var accountType string
	err := db.WithContext(ctx).Raw(
		`SELECT account_type FROM accounts WHERE ledger_id = ? AND id = ? AND is_active = ?`,
		ledgerID,
		accountID,
		true,
	).Scan(&accountType).Error
	return accountType, err
}

func (r *repo) RecomputeBalances(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, accountIDs []snowflake.ID) error {
	if len(accountIDs) == 0 {
		return nil
	}

	var targets []struct {
		ID            snowflake.ID
		AccountID     snowflake.ID
		GLAccountType accountdomain.Type
	}
	err := db.WithContext(ctx).Raw(
		`SELECT ba.id, ba.account_id, a.account_type AS gl_account_type
		 FROM bank_accounts ba
		 JOIN accounts a ON a.id = ba.account_id
		 WHERE ba.ledger_id = ? AND ba.account_id IN ?`,
		ledgerID,
		accountIDs,
	).Scan(&targets).Error
	if err != nil {
		return err
	}

	for _, target := range targets {
		var sums struct {
			Debit  decimal.Decimal
			Credit decimal.Decimal
		}
		err := db.WithContext(ctx).Raw(
			`SELECT COALESCE(SUM(je.debit), 0) AS debit, COALESCE(SUM(je.credit), 0) AS credit
			 FROM journal_entries je
			 JOIN transactions t ON t.id = je.transaction_id
			 WHERE t.ledger_id = ? AND je.account_id = ? AND t.status IN ('POSTED', 'RECONCILED')`,
			ledgerID,
			target.AccountID,
		).Scan(&sums).Error
		if err != nil {
			return err
		}

		balance := domain.SignedAmount(target.GLAccountType, sums.Debit, sums.Credit)
		err = db.WithContext(ctx).Exec(
			`UPDATE bank_accounts SET balance = ? WHERE id = ?`,
			balance.Round(2),
			target.ID,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}
