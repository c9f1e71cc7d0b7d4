package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Type            *Type
	IncludeInactive bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	Update(ctx context.Context, db *gorm.DB, account *Account) error
	SetParent(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID, parentID *snowflake.ID) error
	Delete(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID) (*Account, error)
	FindByNumber(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, number string) (*Account, error)
	List(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, filter ListFilter) ([]*Account, error)
	NumberIndex(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID) (map[string]snowflake.ID, error)
	CountJournalEntries(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	CountBankAccounts(ctx context.Context, db *gorm.DB, id snowflake.ID, activeOnly bool) (int64, error)

	FindTemplateByName(ctx context.Context, db *gorm.DB, name string) (*Template, error)
	FindDefaultTemplate(ctx context.Context, db *gorm.DB) (*Template, error)
	ListTemplates(ctx context.Context, db *gorm.DB) ([]*Template, error)
	ListTemplateAccounts(ctx context.Context, db *gorm.DB, templateID snowflake.ID, defaultOnly bool) ([]*TemplateAccount, error)
}
