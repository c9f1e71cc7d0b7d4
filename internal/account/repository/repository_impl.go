package repository

import (
	"context"

	"github.com/anoteng/regnskap/internal/account/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const accountColumns = `id, ledger_id, account_number, account_name, account_type, parent_account_id,
	description, is_active, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.LedgerID,
		account.AccountNumber,
		account.AccountName,
		account.AccountType,
		account.ParentAccountID,
		account.Description,
		account.IsActive,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET account_number = ?, account_name = ?, account_type = ?, parent_account_id = ?,
		     description = ?, is_active = ?, updated_at = ?
		 WHERE ledger_id = ? AND id = ?`,
		account.AccountNumber,
		account.AccountName,
		account.AccountType,
		account.ParentAccountID,
		account.Description,
		account.IsActive,
		account.UpdatedAt,
		account.LedgerID,
		account.ID,
	).Error
}

func (r *repo) SetParent(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID, parentID *snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET parent_account_id = ? WHERE ledger_id = ? AND id = ?`,
		parentID,
		ledgerID,
		id,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM accounts WHERE ledger_id = ? AND id = ?`,
		ledgerID,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM accounts WHERE ledger_id = ? AND id = ?`,
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

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, number string) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM accounts WHERE ledger_id = ? AND account_number = ?`,
		ledgerID,
		number,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, filter domain.ListFilter) ([]*domain.Account, error) {
	var accounts []*domain.Account
	stmt := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("ledger_id = ?", ledgerID)
	if filter.Type != nil {
		stmt = stmt.Where("account_type = ?", *filter.Type)
	}
	if !filter.IncludeInactive {
		stmt = stmt.Where("is_active = ?", true)
	}
	err := stmt.Order("account_number asc").Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) NumberIndex(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID) (map[string]snowflake.ID, error) {
	var rows []struct {
		ID            snowflake.ID
		AccountNumber string
	}
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_number FROM accounts WHERE ledger_id = ?`,
		ledgerID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	index := make(map[string]snowflake.ID, len(rows))
	for _, row := range rows {
		index[row.AccountNumber] = row.ID
	}
	return index, nil
}

func (r *repo) CountJournalEntries(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM journal_entries WHERE account_id = ?`,
		id,
	).Scan(&count).Error
	return count, err
}

func (r *repo) CountBankAccounts(ctx context.Context, db *gorm.DB, id snowflake.ID, activeOnly bool) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM bank_accounts WHERE account_id = ?`
	args := []any{id}
	if activeOnly {
		query += ` AND is_active = ?`
		args = append(args, true)
	}
	err := db.WithContext(ctx).Raw(query, args...).Scan(&count).Error
	return count, err
}

const templateColumns = `id, name, slug, description, is_default, is_active, created_at, updated_at`

func (r *repo) FindTemplateByName(ctx context.Context, db *gorm.DB, name string) (*domain.Template, error) {
	var template domain.Template
	err := db.WithContext(ctx).Raw(
		`SELECT `+templateColumns+` FROM chart_templates
		 WHERE (name = ? OR slug = ?) AND is_active = ?`,
		name,
		name,
		true,
	).Scan(&template).Error
	if err != nil {
		return nil, err
	}
	if template.ID == 0 {
		return nil, nil
	}
	return &template, nil
}

func (r *repo) FindDefaultTemplate(ctx context.Context, db *gorm.DB) (*domain.Template, error) {
	var template domain.Template
	err := db.WithContext(ctx).Raw(
		`SELECT `+templateColumns+` FROM chart_templates
		 WHERE is_default = ? AND is_active = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1`,
		true,
		true,
	).Scan(&template).Error
	if err != nil {
		return nil, err
	}
	if template.ID == 0 {
		return nil, nil
	}
	return &template, nil
}

func (r *repo) ListTemplates(ctx context.Context, db *gorm.DB) ([]*domain.Template, error) {
	var templates []*domain.Template
	err := db.WithContext(ctx).Raw(
		`SELECT ` + templateColumns + ` FROM chart_templates WHERE is_active = ? ORDER BY name ASC`,
		true,
	).Scan(&templates).Error
	if err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *repo) ListTemplateAccounts(ctx context.Context, db *gorm.DB, templateID snowflake.ID, defaultOnly bool) ([]*domain.TemplateAccount, error) {
	var accounts []*domain.TemplateAccount
	query := `SELECT id, template_id, account_number, account_name, account_type, parent_account_number,
		description, is_default, sort_order
		FROM chart_template_accounts WHERE template_id = ?`
	args := []any{templateID}
	if defaultOnly {
		query += ` AND is_default = ?`
		args = append(args, true)
	}
	query += ` ORDER BY sort_order ASC, account_number ASC`
	err := db.WithContext(ctx).Raw(query, args...).Scan(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}
