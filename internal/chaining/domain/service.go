package domain

import (
	"context"

	transactiondomain "github.com/anoteng/regnskap/internal/transaction/domain"
	"github.com/bwmarrin/snowflake"
)

type ChainRequest struct {
	PrimaryTransactionID   snowflake.ID
	SecondaryTransactionID snowflake.ID
	AutoPost               bool
}

type Service interface {
	Suggestions(ctx context.Context, ledgerID snowflake.ID) ([]Suggestion, error)
	Chain(ctx context.Context, ledgerID snowflake.ID, req ChainRequest) (transactiondomain.Transaction, error)
}
