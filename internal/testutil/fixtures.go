package testutil

import (
	"testing"
	"time"

	accountdomain "github.com/anoteng/regnskap/internal/account/domain"
	bankaccountdomain "github.com/anoteng/regnskap/internal/bankaccount/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func CreateAccount(t *testing.T, db *gorm.DB, node *snowflake.Node, ledgerID snowflake.ID, number string, accountType accountdomain.Type) snowflake.ID {
	t.Helper()
	now := time.Now().UTC()
	account := accountdomain.Account{
		ID:            node.Generate(),
		LedgerID:      ledgerID,
		AccountNumber: number,
		AccountName:   "Account " + number,
		AccountType:   accountType,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, db.Create(&account).Error)
	return account.ID
}

func CreateBankAccount(t *testing.T, db *gorm.DB, node *snowflake.Node, ledgerID, glAccountID snowflake.ID) snowflake.ID {
	t.Helper()
	now := time.Now().UTC()
	account := bankaccountdomain.BankAccount{
		ID:          node.Generate(),
		LedgerID:    ledgerID,
		AccountID:   glAccountID,
		Name:        "Brukskonto",
		AccountType: bankaccountdomain.TypeChecking,
		Balance:     decimal.Zero,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, db.Create(&account).Error)
	return account.ID
}

func BankBalance(t *testing.T, db *gorm.DB, bankAccountID snowflake.ID) decimal.Decimal {
	t.Helper()
	var balance decimal.Decimal
	require.NoError(t, db.Raw(`SELECT balance FROM bank_accounts WHERE id = ?`, bankAccountID).Scan(&balance).Error)
	return balance
}
