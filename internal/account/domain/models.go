package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Type string

const (
	TypeAsset     Type = "ASSET"
	TypeLiability Type = "LIABILITY"
	TypeEquity    Type = "EQUITY"
	TypeRevenue   Type = "REVENUE"
	TypeExpense   Type = "EXPENSE"
)

// ParseType accepts the five account types case-insensitively and rejects
// anything else.
func ParseType(value string) (Type, error) {
	switch Type(strings.ToUpper(strings.TrimSpace(value))) {
	case TypeAsset:
		return TypeAsset, nil
	case TypeLiability:
		return TypeLiability, nil
	case TypeEquity:
		return TypeEquity, nil
	case TypeRevenue:
		return TypeRevenue, nil
	case TypeExpense:
		return TypeExpense, nil
	}
	return "", ErrInvalidType
}

// CreditNormal reports whether the balance of this type grows with credits.
func (t Type) CreditNormal() bool {
	switch t {
	case TypeLiability, TypeEquity, TypeRevenue:
		return true
	}
	return false
}

type Account struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	LedgerID        snowflake.ID  `gorm:"not null;uniqueIndex:ux_accounts_ledger_number,priority:1" json:"ledger_id"`
	AccountNumber   string        `gorm:"size:20;not null;uniqueIndex:ux_accounts_ledger_number,priority:2" json:"account_number"`
	AccountName     string        `gorm:"size:255;not null" json:"account_name"`
	AccountType     Type          `gorm:"size:20;not null" json:"account_type"`
	ParentAccountID *snowflake.ID `json:"parent_account_id,omitempty"`
	Description     *string       `json:"description,omitempty"`
	IsActive        bool          `gorm:"not null" json:"is_active"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

type Template struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name        string            `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Slug        string            `gorm:"size:100;not null;uniqueIndex" json:"slug"`
	Description *string           `json:"description,omitempty"`
	IsDefault   bool              `gorm:"not null" json:"is_default"`
	IsActive    bool              `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null" json:"updated_at"`
	Accounts    []TemplateAccount `gorm:"-" json:"accounts,omitempty"`
}

func (Template) TableName() string { return "chart_templates" }

type TemplateAccount struct {
	ID                  snowflake.ID `gorm:"primaryKey" json:"id"`
	TemplateID          snowflake.ID `gorm:"not null;uniqueIndex:ux_chart_template_accounts_number,priority:1" json:"template_id"`
	AccountNumber       string       `gorm:"size:20;not null;uniqueIndex:ux_chart_template_accounts_number,priority:2" json:"account_number"`
	AccountName         string       `gorm:"size:255;not null" json:"account_name"`
	AccountType         Type         `gorm:"size:20;not null" json:"account_type"`
	ParentAccountNumber *string      `gorm:"size:20" json:"parent_account_number,omitempty"`
	Description         *string      `json:"description,omitempty"`
	IsDefault           bool         `gorm:"not null" json:"is_default"`
	SortOrder           int          `gorm:"not null" json:"sort_order"`
}

func (TemplateAccount) TableName() string { return "chart_template_accounts" }
