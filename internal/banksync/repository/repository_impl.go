package repository

import (
	"context"
	"time"

	"github.com/anoteng/regnskap/internal/banksync/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const connectionColumns = `id, ledger_id, bank_account_id, provider_id, external_bank_id,
	external_account_id, external_account_name, iban, access_token, refresh_token,
	token_expires_at, status, connection_error, last_sync_at, last_successful_sync_at,
	initial_sync_from_date, auto_sync_enabled, sync_frequency_hours, created_by,
	created_at, updated_at`

func (r *repo) ListProviders(ctx context.Context, db *gorm.DB, activeOnly bool) ([]*domain.Provider, error) {
	var items []*domain.Provider
	stmt := db.WithContext(ctx).Model(&domain.Provider{})
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	if err := stmt.Order("display_name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindProvider(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Provider, error) {
	var item domain.Provider
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindProviderByName(ctx context.Context, db *gorm.DB, name string) (*domain.Provider, error) {
	var item domain.Provider
	err := db.WithContext(ctx).Where("name = ?", name).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// UpsertProvider keeps the stored id and credentials when the name exists and
// refreshes the descriptive columns.
func (r *repo) UpsertProvider(ctx context.Context, db *gorm.DB, provider *domain.Provider) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "environment", "authorization_url", "token_url", "api_base_url", "updated_at",
		}),
	}).Create(provider).Error
}

func (r *repo) InsertConnection(ctx context.Context, db *gorm.DB, conn *domain.Connection) error {
	return db.WithContext(ctx).Create(conn).Error
}

func (r *repo) FindConnection(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID) (*domain.Connection, error) {
	var item domain.Connection
	err := db.WithContext(ctx).Raw(
		`SELECT `+connectionColumns+`
		 FROM bank_connections
		 WHERE ledger_id = ? AND id = ?
		 LIMIT 1`,
		ledgerID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListConnections(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID) ([]*domain.Connection, error) {
	var items []*domain.Connection
	err := db.WithContext(ctx).Raw(
		`SELECT `+connectionColumns+`
		 FROM bank_connections
		 WHERE ledger_id = ?
		 ORDER BY created_at ASC, id ASC`,
		ledgerID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListAutoSyncConnections(ctx context.Context, db *gorm.DB) ([]*domain.Connection, error) {
	var items []*domain.Connection
	err := db.WithContext(ctx).Raw(
		`SELECT `+connectionColumns+`
		 FROM bank_connections
		 WHERE status = ? AND auto_sync_enabled = ?
		 ORDER BY last_sync_at ASC, id ASC`,
		domain.ConnectionActive,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateSettings(ctx context.Context, db *gorm.DB, conn *domain.Connection) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bank_connections
		 SET auto_sync_enabled = ?, sync_frequency_hours = ?, initial_sync_from_date = ?, updated_at = ?
		 WHERE ledger_id = ? AND id = ?`,
		conn.AutoSyncEnabled,
		conn.SyncFrequencyHours,
		conn.InitialSyncFromDate,
		conn.UpdatedAt,
		conn.LedgerID,
		conn.ID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateTokens(ctx context.Context, db *gorm.DB, id snowflake.ID, accessToken, refreshToken *string, expiresAt *time.Time, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bank_connections
		 SET access_token = ?, refresh_token = ?, token_expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		accessToken,
		refreshToken,
		expiresAt,
		now,
		id,
	).Error
}

func (r *repo) UpdateSyncOutcome(ctx context.Context, db *gorm.DB, conn *domain.Connection) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bank_connections
		 SET status = ?, connection_error = ?, last_sync_at = ?, last_successful_sync_at = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		conn.Status,
		conn.ConnectionError,
		conn.LastSyncAt,
		conn.LastSuccessfulSyncAt,
		conn.UpdatedAt,
		conn.ID,
		domain.ConnectionDisconnected,
	).Error
}

func (r *repo) Disconnect(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bank_connections
		 SET status = ?, access_token = NULL, refresh_token = NULL, token_expires_at = NULL,
		     auto_sync_enabled = ?, updated_at = ?
		 WHERE ledger_id = ? AND id = ?`,
		domain.ConnectionDisconnected,
		false,
		now,
		ledgerID,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertState(ctx context.Context, db *gorm.DB, state *domain.OAuthState) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO oauth_states (
			id, state_token, user_id, ledger_id, bank_account_id, provider_id,
			external_bank_id, expires_at, used_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		state.ID,
		state.StateToken,
		state.UserID,
		state.LedgerID,
		state.BankAccountID,
		state.ProviderID,
		state.ExternalBankID,
		state.ExpiresAt,
		state.UsedAt,
		state.CreatedAt,
	).Error
}

func (r *repo) FindState(ctx context.Context, db *gorm.DB, token string) (*domain.OAuthState, error) {
	var item domain.OAuthState
	err := db.WithContext(ctx).Raw(
		`SELECT id, state_token, user_id, ledger_id, bank_account_id, provider_id,
		        external_bank_id, expires_at, used_at, created_at
		 FROM oauth_states
		 WHERE state_token = ?
		 LIMIT 1`,
		token,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ConsumeState(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE oauth_states SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		now,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) InsertStaged(ctx context.Context, db *gorm.DB, row *domain.StagedTransaction) (bool, error) {
	result := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bank_connection_id"}, {Name: "external_transaction_id"}},
		DoNothing: true,
	}).Create(row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

const stagedColumns = `id, bank_connection_id, external_transaction_id, transaction_date,
	booking_date, value_date, amount, currency, description, reference, merchant_name,
	merchant_category, dedup_hash, import_status, imported_transaction_id, raw_data, fetched_at`

func (r *repo) FindStaged(ctx context.Context, db *gorm.DB, connectionID, id snowflake.ID) (*domain.StagedTransaction, error) {
	var item domain.StagedTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+stagedColumns+`
		 FROM bank_transactions
		 WHERE bank_connection_id = ? AND id = ?
		 LIMIT 1`,
		connectionID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindStagedByExternalID(ctx context.Context, db *gorm.DB, connectionID snowflake.ID, externalID string) (*domain.StagedTransaction, error) {
	var item domain.StagedTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+stagedColumns+`
		 FROM bank_transactions
		 WHERE bank_connection_id = ? AND external_transaction_id = ?
		 LIMIT 1`,
		connectionID,
		externalID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindStagedByHash(ctx context.Context, db *gorm.DB, connectionID snowflake.ID, hash string, excludeID snowflake.ID, statuses []domain.ImportStatus) (*domain.StagedTransaction, error) {
	var item domain.StagedTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+stagedColumns+`
		 FROM bank_transactions
		 WHERE bank_connection_id = ? AND dedup_hash = ? AND id <> ? AND import_status IN ?
		 ORDER BY fetched_at ASC, id ASC
		 LIMIT 1`,
		connectionID,
		hash,
		excludeID,
		statuses,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListStaged(ctx context.Context, db *gorm.DB, connectionID snowflake.ID, status *domain.ImportStatus, limit int) ([]*domain.StagedTransaction, error) {
	var items []*domain.StagedTransaction
	stmt := db.WithContext(ctx).Model(&domain.StagedTransaction{}).
		Where("bank_connection_id = ?", connectionID)
	if status != nil {
		stmt = stmt.Where("import_status = ?", *status)
	}
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	err := stmt.Order("transaction_date ASC").Order("id ASC").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SetStagedStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.ImportStatus, to domain.ImportStatus, importedTransactionID *snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bank_transactions
		 SET import_status = ?, imported_transaction_id = ?
		 WHERE id = ? AND import_status IN ?`,
		to,
		importedTransactionID,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) InsertSyncLog(ctx context.Context, db *gorm.DB, log *domain.SyncLog) error {
	return db.WithContext(ctx).Create(log).Error
}

func (r *repo) ListSyncLogs(ctx context.Context, db *gorm.DB, connectionID snowflake.ID, limit int) ([]*domain.SyncLog, error) {
	var items []*domain.SyncLog
	err := db.WithContext(ctx).
		Where("bank_connection_id = ?", connectionID).
		Order("started_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
