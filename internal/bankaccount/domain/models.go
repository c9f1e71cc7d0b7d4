package domain

import (
	"strings"
	"time"

	accountdomain "github.com/anoteng/regnskap/internal/account/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeChecking   Type = "CHECKING"
	TypeSavings    Type = "SAVINGS"
	TypeCreditCard Type = "CREDIT_CARD"
)

func ParseType(value string) (Type, error) {
	switch Type(strings.ToUpper(strings.TrimSpace(value))) {
	case TypeChecking:
		return TypeChecking, nil
	case TypeSavings:
		return TypeSavings, nil
	case TypeCreditCard:
		return TypeCreditCard, nil
	}
	return "", ErrInvalidType
}

// BankAccount ties a real bank account to the GL account that carries its
// postings. Balance is derived from posted entries and never written by hand.
type BankAccount struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	LedgerID      snowflake.ID    `gorm:"not null;index" json:"ledger_id"`
	AccountID     snowflake.ID    `gorm:"not null;index" json:"account_id"`
	Name          string          `gorm:"size:255;not null" json:"name"`
	AccountType   Type            `gorm:"size:20;not null" json:"account_type"`
	AccountNumber *string         `gorm:"size:50" json:"account_number,omitempty"`
	Balance       decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"balance"`
	IsActive      bool            `gorm:"not null" json:"is_active"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

func (BankAccount) TableName() string { return "bank_accounts" }

// Linked is a bank account together with the type of its GL account.
type Linked struct {
	BankAccount
	GLAccountType accountdomain.Type `json:"gl_account_type"`
}

// SplitAmount turns a signed bank amount (positive = money in) into one
// debit/credit pair on the GL account. Money in debits an asset account and
// credits a liability account.
func SplitAmount(glType accountdomain.Type, amount decimal.Decimal) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	in := amount.IsPositive()
	if glType == accountdomain.TypeLiability {
		in = !in
	}
	if in {
		debit = amount.Abs()
	} else {
		credit = amount.Abs()
	}
	return debit, credit
}

// SignedAmount is the inverse of SplitAmount.
func SignedAmount(glType accountdomain.Type, debit, credit decimal.Decimal) decimal.Decimal {
	if glType == accountdomain.TypeLiability {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}
