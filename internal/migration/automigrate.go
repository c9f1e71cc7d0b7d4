package migration

import (
	accountdomain "github.com/anoteng/regnskap/internal/account/domain"
	auditdomain "github.com/anoteng/regnskap/internal/audit/domain"
	bankaccountdomain "github.com/anoteng/regnskap/internal/bankaccount/domain"
	banksyncdomain "github.com/anoteng/regnskap/internal/banksync/domain"
	csvimportdomain "github.com/anoteng/regnskap/internal/csvimport/domain"
	transactiondomain "github.com/anoteng/regnskap/internal/transaction/domain"
	"gorm.io/gorm"
)

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&accountdomain.Template{},
		&accountdomain.TemplateAccount{},
		&accountdomain.Account{},
		&bankaccountdomain.BankAccount{},
		&transactiondomain.Transaction{},
		&transactiondomain.JournalEntry{},
		&csvimportdomain.Mapping{},
		&csvimportdomain.ImportLog{},
		&banksyncdomain.Provider{},
		&banksyncdomain.Connection{},
		&banksyncdomain.StagedTransaction{},
		&banksyncdomain.SyncLog{},
		&banksyncdomain.OAuthState{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate builds the schema from the models. It serves sqlite and mysql
// deployments and tests; postgres goes through RunMigrations.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return err
	}
	// Partial indexes are not portable to mysql, where the service-level
	// check alone guards double reversals.
	if conn.Dialector.Name() == "mysql" {
		return nil
	}
	return conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_transactions_reversed_of
		 ON transactions (reversed_of_transaction_id)
		 WHERE reversed_of_transaction_id IS NOT NULL`,
	).Error
}
