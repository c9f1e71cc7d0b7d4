package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
)

// ConfidenceFor grades a pair by how far apart the two legs were booked.
func ConfidenceFor(primary, secondary time.Time) Confidence {
	if primary.Equal(secondary) {
		return ConfidenceHigh
	}
	return ConfidenceMedium
}

// Suggestion is a debit leg and a credit leg that look like the two halves of
// one transfer between accounts in the same ledger.
type Suggestion struct {
	PrimaryTransactionID   snowflake.ID    `json:"primary_transaction_id"`
	SecondaryTransactionID snowflake.ID    `json:"secondary_transaction_id"`
	PrimaryDescription     string          `json:"primary_description"`
	SecondaryDescription   string          `json:"secondary_description"`
	PrimaryAccountName     string          `json:"primary_account_name"`
	SecondaryAccountName   string          `json:"secondary_account_name"`
	Amount                 decimal.Decimal `json:"amount"`
	PrimaryDate            time.Time       `json:"primary_date"`
	SecondaryDate          time.Time       `json:"secondary_date"`
	Confidence             Confidence      `json:"confidence"`
}
