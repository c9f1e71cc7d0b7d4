// Package ledger bundles the bookkeeping services that every process
// serving a ledger needs.
package ledger

import (
	"github.com/anoteng/regnskap/internal/account"
	"github.com/anoteng/regnskap/internal/audit"
	"github.com/anoteng/regnskap/internal/bankaccount"
	"github.com/anoteng/regnskap/internal/banksync"
	"github.com/anoteng/regnskap/internal/chaining"
	"github.com/anoteng/regnskap/internal/csvimport"
	"github.com/anoteng/regnskap/internal/synclock"
	"github.com/anoteng/regnskap/internal/transaction"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.services",
	audit.Module,
	account.Module,
	bankaccount.Module,
	transaction.Module,
	csvimport.Module,
	synclock.Module,
	banksync.Module,
	chaining.Module,
)
