package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *BankAccount) error
	SetActive(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID, active bool) error
	FindByID(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID) (*Linked, error)
	List(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, includeInactive bool) ([]*Linked, error)
	GLAccountType(ctx context.Context, db *gorm.DB, ledgerID, accountID snowflake.ID) (string, error)
	// RecomputeBalances rewrites the balance of every bank account in the
	// ledger whose GL account is one of accountIDs.
	RecomputeBalances(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID, accountIDs []snowflake.ID) error
}
